package session

import (
	"fmt"

	"github.com/cardswap/cardswap/internal/models"
)

// Status is the state of the authentication machine.
type Status int

const (
	Unauthenticated Status = iota
	Authenticating
	Authenticated
	Failed
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Operation names a credential operation.
type Operation string

const (
	OpSignUp      Operation = "sign-up"
	OpRequestCode Operation = "request-code"
	OpVerifyCode  Operation = "verify-code"
	OpPassword    Operation = "password"
	OpOAuth       Operation = "oauth"
	OpLogout      Operation = "logout"
)

// State is a snapshot of the manager. Snapshots are values; changing one has
// no effect on the manager.
type State struct {
	Status Status
	// Resolved is false until the provider has reported whether a prior
	// session persists. Consumers should not render a signed-out view before.
	Resolved bool
	Session  *models.Session
	// Err is the last failure. With Status Failed it is why sign-in failed;
	// with Status Authenticated it is a failed logout.
	Err *AuthError
	// Operation is the credential operation in flight while Authenticating.
	Operation Operation
	// PendingConfirmation is the address of an account created by sign-up
	// that still has to confirm its email.
	PendingConfirmation string
	// CodeSentTo is the address a login code was last sent to.
	CodeSentTo string
	// AwaitingRedirect names the OAuth provider of a redirect sign-in that
	// has not returned yet.
	AwaitingRedirect string
	// Version increases with every change.
	Version uint64
}

// IsAuthenticated reports whether a session is active.
func (s State) IsAuthenticated() bool {
	return s.Status == Authenticated && s.Session != nil
}

func (s State) clone() State {
	if s.Session != nil {
		c := *s.Session
		s.Session = &c
	}
	return s
}
