// Package session combines auth identities with user profiles and tracks
// the signed-in user for a live connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/models"
)

const (
	// PlaceholderName is used when an identity has no profile document.
	PlaceholderName = "User"
	DefaultRole     = models.RoleClient
)

var ErrProfileNotFound = errors.New("profile not found")

// Authenticator is the identity service the session layer sits on.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.Credential, error)
	SignUp(ctx context.Context, email, password string) (*auth.Credential, error)
	SignInExternal(ctx context.Context, email string) (*auth.Credential, bool, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (*auth.Identity, error)
	Watch(ctx context.Context, token string, fn func(*auth.Identity)) func()
}

type Profiles interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
}

type GormProfiles struct {
	DB *gorm.DB
}

func NewGormProfiles(db *gorm.DB) *GormProfiles {
	return &GormProfiles{DB: db}
}

func (p *GormProfiles) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := p.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p *GormProfiles) Create(ctx context.Context, u *models.User) error {
	return p.DB.WithContext(ctx).Create(u).Error
}

// HomeRoute is where a user lands after their role is resolved.
func HomeRoute(u *models.User) string {
	if u == nil {
		return "/"
	}
	switch u.Role {
	case models.RoleWorker:
		return "/worker-dashboard"
	case models.RoleAdmin:
		return "/admin-dashboard"
	default:
		return "/home"
	}
}

type Session struct {
	User      *models.User `json:"user"`
	Token     string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	Home      string       `json:"home"`
}

type Manager struct {
	auth     Authenticator
	profiles Profiles
	log      *zap.Logger
}

func NewManager(a Authenticator, profiles Profiles, log *zap.Logger) *Manager {
	return &Manager{auth: a, profiles: profiles, log: log}
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	cred, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.open(ctx, cred)
}

// SignUp creates the identity and then writes its profile. A failed profile
// write is logged, not returned: the identity exists and resolves to the
// placeholder profile until it is repaired.
func (m *Manager) SignUp(ctx context.Context, email, password, firstName string, role models.Role) (*Session, error) {
	cred, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if role != models.RoleWorker {
		role = models.RoleClient
	}
	profile := &models.User{
		ID:        cred.ID,
		FirstName: strings.TrimSpace(firstName),
		Email:     cred.Email,
		Role:      role,
	}
	if err := m.profiles.Create(ctx, profile); err != nil {
		m.log.Error("profile write failed", zap.String("uid", cred.ID.String()), zap.Error(err))
	}

	return m.open(ctx, cred)
}

// SignInExternal signs in an identity verified by a third party, creating
// a client profile named name on first use.
func (m *Manager) SignInExternal(ctx context.Context, email, name string) (*Session, error) {
	cred, created, err := m.auth.SignInExternal(ctx, email)
	if err != nil {
		return nil, err
	}

	if created {
		first := strings.TrimSpace(name)
		if i := strings.IndexByte(first, ' '); i > 0 {
			first = first[:i]
		}
		if first == "" {
			first = PlaceholderName
		}
		profile := &models.User{ID: cred.ID, FirstName: first, Email: cred.Email, Role: models.RoleClient}
		if err := m.profiles.Create(ctx, profile); err != nil {
			m.log.Error("profile write failed", zap.String("uid", cred.ID.String()), zap.Error(err))
		}
	}

	return m.open(ctx, cred)
}

func (m *Manager) open(ctx context.Context, cred *auth.Credential) (*Session, error) {
	user, err := m.Resolve(ctx, &cred.Identity)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:      user,
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		Home:      HomeRoute(user),
	}, nil
}

func (m *Manager) SignOut(ctx context.Context, token string) error {
	return m.auth.SignOut(ctx, token)
}

// Authenticate verifies token and returns the combined user.
func (m *Manager) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := m.auth.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.Resolve(ctx, id)
}

// Resolve loads the profile for id, falling back to the default role and a
// placeholder name when the profile document is missing.
func (m *Manager) Resolve(ctx context.Context, id *auth.Identity) (*models.User, error) {
	u, err := m.profiles.Get(ctx, id.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	m.log.Warn("profile missing, using defaults", zap.String("uid", id.ID.String()))
	return &models.User{
		ID:        id.ID,
		FirstName: PlaceholderName,
		Email:     id.Email,
		Role:      DefaultRole,
	}, nil
}
