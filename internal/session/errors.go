package session

import (
	"context"
	"errors"

	"github.com/cardswap/cardswap/internal/models"
)

// Reason is the closed set of authentication failures shown to the user.
type Reason string

const (
	ReasonInvalidCredentials  Reason = "invalid-credentials"
	ReasonEmailUnconfirmed    Reason = "email-unconfirmed"
	ReasonAccountNotFound     Reason = "account-not-found"
	ReasonAccountExists       Reason = "account-already-exists"
	ReasonProviderUnavailable Reason = "provider-unavailable"
	ReasonUnknown             Reason = "unknown"
)

// AuthError is a provider failure folded into the closed taxonomy. Err keeps
// the provider's error for logs.
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	return string(e.Reason) + ": " + e.Message()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message is the human-readable text for the reason.
func (e *AuthError) Message() string {
	switch e.Reason {
	case ReasonInvalidCredentials:
		return "the code or password is incorrect or has expired"
	case ReasonEmailUnconfirmed:
		return "confirm your email address before signing in"
	case ReasonAccountNotFound:
		return "no account exists for this email address"
	case ReasonAccountExists:
		return "an account already exists for this email address"
	case ReasonProviderUnavailable:
		return "the sign-in service is unreachable, try again shortly"
	default:
		return "something went wrong while signing in"
	}
}

// Classify maps a provider error onto the taxonomy.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrUnauthorized):
		return ReasonInvalidCredentials
	case errors.Is(err, models.ErrEmailNotVerified):
		return ReasonEmailUnconfirmed
	case errors.Is(err, models.ErrNotFound):
		return ReasonAccountNotFound
	case errors.Is(err, models.ErrConflict):
		return ReasonAccountExists
	case errors.Is(err, models.ErrProviderUnavailable),
		errors.Is(err, models.ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return ReasonProviderUnavailable
	default:
		return ReasonUnknown
	}
}

// newAuthError wraps err, keeping an AuthError already in the chain.
func newAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return &AuthError{Reason: Classify(err), Err: err}
}
