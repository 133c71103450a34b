package models

import (
	"time"
)

// ProfileRecord is a row of the profile store, keyed by the identity id.
type ProfileRecord struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Country   string
	City      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is an account held by the offline identity provider.
type User struct {
	ID            string
	Email         string
	PasswordHash  string // empty for passwordless-only accounts
	Profile       Profile
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ToIdentity converts the account to the identity shape sessions carry.
func (u *User) ToIdentity() Identity {
	return Identity{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailVerified,
		Profile:        u.Profile,
		CreatedAt:      u.CreatedAt,
	}
}
