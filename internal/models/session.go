package models

import "time"

// Profile holds the attributes captured at sign-up.
type Profile struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Phone   string `json:"phone" validate:"required,min=10,max=20"`
	Country string `json:"country" validate:"required,country"`
	City    string `json:"city" validate:"required,min=2,max=100"`
}

// Identity is the authenticated user as reported by the identity provider.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	Profile        Profile   `json:"profile"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is the provider-issued authenticated context. Tokens are opaque to
// the client; only ExpiresAt is interpreted.
type Session struct {
	User         Identity  `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionEventType names an externally-driven session change.
type SessionEventType string

const (
	SessionSignedIn       SessionEventType = "SIGNED_IN"
	SessionSignedOut      SessionEventType = "SIGNED_OUT"
	SessionTokenRefreshed SessionEventType = "TOKEN_REFRESHED"
	SessionUserUpdated    SessionEventType = "USER_UPDATED"
)

// SessionEvent is a change notification pushed by the identity provider.
// Session is nil for SessionSignedOut.
type SessionEvent struct {
	Type    SessionEventType
	Session *Session
	At      time.Time
}
