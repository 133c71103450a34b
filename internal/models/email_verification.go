package models

import (
	"time"
)

// ConfirmationToken is the email confirmation issued at sign-up. Until it is
// redeemed the account cannot sign in.
type ConfirmationToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsExpired checks if the token has expired
func (t *ConfirmationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsUsed checks if the token has already been used
func (t *ConfirmationToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsValid checks if the token is still valid (not expired and not used)
func (t *ConfirmationToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsUsed()
}
