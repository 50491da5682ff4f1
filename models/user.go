package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User mirrors the account record managed by the identity service.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `json:"name"`
	Role      string    `gorm:"default:customer" json:"role"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Principal is the identity attached to a request. Anonymous visitors have a
// zero UserID and Authenticated set to false.
type Principal struct {
	UserID        uuid.UUID
	Authenticated bool
}

func Anonymous() Principal {
	return Principal{}
}

func AuthenticatedAs(userID uuid.UUID) Principal {
	return Principal{UserID: userID, Authenticated: true}
}
