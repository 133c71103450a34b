package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by provider-issued access tokens.
// Field names follow the GoTrue token layout so both adapters share them.
type TokenClaims struct {
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// LoginCode is a pending passwordless challenge: a one-time code and the
// matching magic link token, both sent to the same email.
type LoginCode struct {
	ID         string
	Email      string
	CodeHash   string // sha256 hex of the one-time code
	LinkHash   string // sha256 hex of the magic link token
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsExpired checks if the challenge has expired
func (c *LoginCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsUsable reports whether the challenge can still be redeemed.
func (c *LoginCode) IsUsable(now time.Time) bool {
	return c.ConsumedAt == nil && !c.IsExpired(now)
}

// OAuth providers accepted by the redirect flow
const (
	OAuthGoogle = "google"
	OAuthGitHub = "github"
	OAuthApple  = "apple"
)

// IsOAuthProvider reports whether p names a supported OAuth provider.
func IsOAuthProvider(p string) bool {
	switch p {
	case OAuthGoogle, OAuthGitHub, OAuthApple:
		return true
	}
	return false
}
