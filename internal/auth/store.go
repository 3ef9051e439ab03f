package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/midrand-elite/meg-services/internal/models"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrEmailTaken       = errors.New("email already registered")
)

// Identities persists sign-in records.
type Identities interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
}

type GormIdentities struct {
	DB *gorm.DB
}

func NewGormIdentities(db *gorm.DB) *GormIdentities {
	return &GormIdentities{DB: db}
}

func (s *GormIdentities) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var id models.Identity
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return &id, nil
}

func (s *GormIdentities) FindByID(ctx context.Context, uid uuid.UUID) (*models.Identity, error) {
	var id models.Identity
	if err := s.DB.WithContext(ctx).First(&id, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return &id, nil
}

// Create inserts identity. A clash on the unique email index is ErrEmailTaken.
func (s *GormIdentities) Create(ctx context.Context, identity *models.Identity) error {
	err := s.DB.WithContext(ctx).Create(identity).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return err
}
