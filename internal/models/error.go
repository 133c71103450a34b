package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrValidation   = errors.New("validation failed")

	// Identity provider errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotVerified    = errors.New("email address not verified")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrRateLimited         = errors.New("too many requests")

	// State machine errors
	ErrStateConflict       = errors.New("operation not allowed in current state")
	ErrOperationInProgress = errors.New("another operation of this kind is in progress")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrDialogDismissed     = errors.New("dialog dismissed")

	// Checkout errors
	ErrPaymentDeclined = errors.New("payment declined")
)
