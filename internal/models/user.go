package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleArtist Role = "artist"
	RoleAdmin  Role = "admin"
	RoleBuyer  Role = "buyer"
)

// User is owned by the account service. This service only reads it to
// resolve artist display data.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null" json:"-"`
	Role       Role      `gorm:"size:16;not null;default:buyer" json:"role"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	ArtistName string    `json:"artistName,omitempty"`
	IsVerified bool      `gorm:"default:false" json:"isVerified"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// DisplayName prefers the artist name and falls back to the person's name.
func (u *User) DisplayName() string {
	if u.ArtistName != "" {
		return u.ArtistName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
