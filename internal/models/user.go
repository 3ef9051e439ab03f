package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// ParseRole normalises a role coming from a public form. Only client and
// worker may be self-assigned; everything else falls back to client.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleWorker:
		return RoleWorker
	default:
		return RoleClient
	}
}

// Identity is the sign-in record owned by the auth provider.
type Identity struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email    string    `gorm:"uniqueIndex;not null" json:"email"`
	Password string    `gorm:"not null" json:"-"`
	Disabled bool      `gorm:"default:false" json:"disabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the profile document keyed by the identity id.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(80);not null" json:"first_name"`
	Email     string    `gorm:"index;not null" json:"email"`
	Phone     string    `gorm:"type:varchar(30)" json:"phone,omitempty"`
	Role      Role      `gorm:"type:varchar(20);not null;index" json:"role"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsWorker() bool { return u != nil && u.Role == RoleWorker }
func (u *User) IsAdmin() bool  { return u != nil && u.Role == RoleAdmin }
