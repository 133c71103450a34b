// Package identity adapts identity providers to the capability the session
// manager consumes. Each adapter keeps the current session locally and pushes
// a change event whenever it changes.
package identity

import (
	"context"

	"github.com/cardswap/cardswap/internal/models"
)

// Provider is everything the client needs from an identity provider.
// Swapping providers means writing another implementation of this interface;
// nothing else changes.
type Provider interface {
	// SendLoginCode emails a one-time code and magic link to an existing account.
	SendLoginCode(ctx context.Context, email string) error
	// VerifyLoginCode redeems a code sent by SendLoginCode and starts a session.
	VerifyLoginCode(ctx context.Context, email, code string) (*models.Session, error)
	// SignInWithPassword starts a session from email and password.
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	// OAuthRedirectURL returns the URL the user must visit to sign in with an
	// OAuth provider. The session arrives later through Subscribe once the
	// redirect returns to redirectTo.
	OAuthRedirectURL(ctx context.Context, provider, redirectTo string) (string, error)
	// SignOut ends the current session. It is a no-op without a session.
	SignOut(ctx context.Context) error
	// GetSession reports the current session, restoring a persisted one if
	// needed. It returns nil, nil when signed out.
	GetSession(ctx context.Context) (*models.Session, error)
	// Subscribe delivers session changes in the order they happen until the
	// returned cancel func is called.
	Subscribe() (<-chan models.SessionEvent, func())
	// SignUp creates an unconfirmed account carrying profile metadata.
	SignUp(ctx context.Context, req SignUpRequest) (*models.Identity, error)
}

// CodeExchanger completes a redirect-based sign-in (OAuth or magic link)
// from the code the provider appended to the redirect URL.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*models.Session, error)
}

// Refresher renews the current session before its access token expires.
type Refresher interface {
	Refresh(ctx context.Context) (*models.Session, error)
}

// SignUpRequest is the data submitted by the sign-up form. Password is
// optional: without one the account signs in with codes only.
type SignUpRequest struct {
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
	Profile  models.Profile `json:"profile"`
}

// SessionStore persists the current session between runs.
type SessionStore interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Clear(ctx context.Context) error
}
