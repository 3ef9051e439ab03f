package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/utils"
	"github.com/midrand-elite/meg-services/internal/validation"
)

// Identity is what a valid token resolves to.
type Identity struct {
	ID    uuid.UUID
	Email string
}

type Credential struct {
	Identity
	Token     string
	ExpiresAt time.Time
}

// Broadcaster fans a sign-out out to other instances.
type Broadcaster interface {
	PublishSignOut(ctx context.Context, jti string) error
}

// Provider is the email+password identity service. Tokens are HS256 JWTs;
// sign-out revokes the token id and fires state-change watchers.
type Provider struct {
	identities Identities
	deny       Denylist
	bus        Broadcaster
	secret     string
	expiresMin int
	log        *zap.Logger

	mu       sync.Mutex
	watchers map[string]map[uint64]func(*Identity)
	nextID   uint64
}

func NewProvider(identities Identities, deny Denylist, secret string, expiresMin int, log *zap.Logger) *Provider {
	return &Provider{
		identities: identities,
		deny:       deny,
		secret:     secret,
		expiresMin: expiresMin,
		log:        log,
		watchers:   make(map[string]map[uint64]func(*Identity)),
	}
}

// SetBroadcaster wires cross-instance sign-out propagation.
func (p *Provider) SetBroadcaster(b Broadcaster) {
	p.bus = b
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, newError(CodeInvalidEmail, nil)
	}

	id, err := p.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, newError(CodeUserNotFound, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}
	if id.Disabled {
		return nil, newError(CodeUserDisabled, nil)
	}
	if !utils.CheckPassword(id.Password, password) {
		return nil, newError(CodeWrongPassword, nil)
	}

	return p.issue(id)
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, newError(CodeInvalidEmail, nil)
	}
	if len(password) < validation.MinPasswordLength {
		return nil, newError(CodeWeakPassword, nil)
	}

	if _, err := p.identities.FindByEmail(ctx, email); err == nil {
		return nil, newError(CodeEmailInUse, nil)
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return nil, newError(CodeNetworkFailed, err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	id := &models.Identity{Email: email, Password: hash}
	if err := p.identities.Create(ctx, id); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, newError(CodeEmailInUse, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}

	p.log.Info("identity created", zap.String("uid", id.ID.String()))
	return p.issue(id)
}

// SignInExternal signs in an identity already verified by a third party,
// creating it with an unusable random password on first use. created reports
// whether the identity is new.
func (p *Provider) SignInExternal(ctx context.Context, email string) (cred *Credential, created bool, err error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, false, newError(CodeInvalidEmail, nil)
	}

	id, err := p.identities.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if id.Disabled {
			return nil, false, newError(CodeUserDisabled, nil)
		}
	case errors.Is(err, ErrIdentityNotFound):
		hash, herr := utils.HashPassword(randomSecret(24))
		if herr != nil {
			return nil, false, herr
		}
		id = &models.Identity{Email: email, Password: hash}
		cerr := p.identities.Create(ctx, id)
		switch {
		case cerr == nil:
			created = true
		case errors.Is(cerr, ErrEmailTaken):
			// A concurrent sign-in created it first.
			if id, err = p.identities.FindByEmail(ctx, email); err != nil {
				return nil, false, newError(CodeNetworkFailed, err)
			}
			if id.Disabled {
				return nil, false, newError(CodeUserDisabled, nil)
			}
		default:
			return nil, false, newError(CodeNetworkFailed, cerr)
		}
	default:
		return nil, false, newError(CodeNetworkFailed, err)
	}

	cred, err = p.issue(id)
	return cred, created, err
}

func (p *Provider) issue(id *models.Identity) (*Credential, error) {
	token, err := utils.SignJWT(p.secret, id.ID.String(), id.Email, p.expiresMin)
	if err != nil {
		return nil, err
	}
	return &Credential{
		Identity:  Identity{ID: id.ID, Email: id.Email},
		Token:     token,
		ExpiresAt: time.Now().Add(time.Duration(p.expiresMin) * time.Minute),
	}, nil
}

// Verify resolves a token to a live identity.
func (p *Provider) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := utils.ParseJWT(p.secret, token)
	if err != nil {
		return nil, newError(CodeInvalidToken, err)
	}

	revoked, err := p.deny.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, newError(CodeNetworkFailed, err)
	}
	if revoked {
		return nil, newError(CodeSessionRevoked, nil)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, newError(CodeInvalidToken, err)
	}

	id, err := p.identities.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, newError(CodeUserNotFound, nil)
		}
		return nil, newError(CodeNetworkFailed, err)
	}
	if id.Disabled {
		return nil, newError(CodeUserDisabled, nil)
	}

	return &Identity{ID: id.ID, Email: id.Email}, nil
}

// SignOut revokes token and notifies its watchers here and on every other
// instance. Signing out an already invalid token is not an error.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := utils.ParseJWT(p.secret, token)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := p.deny.Revoke(ctx, claims.ID, ttl); err != nil {
		return newError(CodeNetworkFailed, err)
	}

	p.HandleSignOut(claims.ID)

	if p.bus != nil {
		if err := p.bus.PublishSignOut(ctx, claims.ID); err != nil {
			p.log.Warn("sign-out broadcast failed", zap.Error(err))
		}
	}
	return nil
}

// HandleSignOut fires and drops every watcher registered for jti.
func (p *Provider) HandleSignOut(jti string) {
	p.mu.Lock()
	fns := p.watchers[jti]
	delete(p.watchers, jti)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
}

// Watch calls fn with the token's current identity (nil when the token can
// never be valid) and again with nil once the token is signed out. A store
// failure while verifying leaves fn uncalled. The returned func stops
// watching.
func (p *Provider) Watch(ctx context.Context, token string, fn func(*Identity)) func() {
	id, err := p.Verify(ctx, token)
	if err != nil {
		if Terminal(err) {
			fn(nil)
		} else {
			p.log.Warn("token watch skipped", zap.Error(err))
		}
		return func() {}
	}

	claims, err := utils.ParseJWT(p.secret, token)
	if err != nil {
		fn(nil)
		return func() {}
	}
	jti := claims.ID

	p.mu.Lock()
	p.nextID++
	key := p.nextID
	if p.watchers[jti] == nil {
		p.watchers[jti] = make(map[uint64]func(*Identity))
	}
	p.watchers[jti][key] = fn
	p.mu.Unlock()

	fn(id)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if m, ok := p.watchers[jti]; ok {
			delete(m, key)
			if len(m) == 0 {
				delete(p.watchers, jti)
			}
		}
	}
}

func randomSecret(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
