package wizard

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/session"
	"github.com/cardswap/cardswap/internal/validation"
)

// LoginStep is a step of the passwordless login dialog.
type LoginStep string

const (
	StepEnterEmail LoginStep = "enter-email"
	StepEnterCode  LoginStep = "enter-code"
	StepLoggedIn   LoginStep = "done"
)

// CodeAuthenticator is the part of the session manager the login dialog
// drives.
type CodeAuthenticator interface {
	RequestLoginCode(ctx context.Context, email string) error
	VerifyLoginCode(ctx context.Context, email, code string) (*models.Session, error)
}

// Login runs the EnterEmail, EnterCode, Done dialog. Each opening gets a
// dialog ticket; a reply that arrives after Dismiss is dropped and reported
// as models.ErrDialogDismissed.
type Login struct {
	auth   CodeAuthenticator
	dialog session.Dialog

	mu     sync.Mutex
	step   LoginStep
	email  string
	ticket session.Ticket
}

func NewLogin(auth CodeAuthenticator) *Login {
	l := &Login{auth: auth, step: StepEnterEmail}
	l.ticket = l.dialog.Open()
	return l
}

// Step returns the current step.
func (l *Login) Step() LoginStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.step
}

// Email returns the address the code was sent to.
func (l *Login) Email() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.email
}

func (l *Login) snapshot(step LoginStep, action string) (session.Ticket, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dialog.Current(l.ticket) {
		return 0, "", models.ErrDialogDismissed
	}
	if l.step != step {
		return 0, "", fmt.Errorf("%w: cannot %s in step %s", models.ErrStateConflict, action, l.step)
	}
	return l.ticket, l.email, nil
}

// deliver applies a reply if the dialog that asked for it is still open and
// returns the reply's error.
func (l *Login) deliver(t session.Ticket, apply func(), result error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dialog.Deliver(t, apply) {
		return models.ErrDialogDismissed
	}
	return result
}

// SubmitEmail requests a code for email and advances to EnterCode.
func (l *Login) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validation.Email(email); err != nil {
		return err
	}

	t, _, err := l.snapshot(StepEnterEmail, "submit an email")
	if err != nil {
		return err
	}

	reqErr := l.auth.RequestLoginCode(ctx, email)
	return l.deliver(t, func() {
		if reqErr == nil {
			l.email = email
			l.step = StepEnterCode
		}
	}, reqErr)
}

// Resend requests a fresh code for the same address.
func (l *Login) Resend(ctx context.Context) error {
	t, email, err := l.snapshot(StepEnterCode, "resend a code")
	if err != nil {
		return err
	}
	reqErr := l.auth.RequestLoginCode(ctx, email)
	return l.deliver(t, func() {}, reqErr)
}

// SubmitCode verifies code and finishes the dialog. A rejected code leaves
// the dialog in EnterCode.
func (l *Login) SubmitCode(ctx context.Context, code string) (*models.Session, error) {
	t, email, err := l.snapshot(StepEnterCode, "submit a code")
	if err != nil {
		return nil, err
	}

	sess, verifyErr := l.auth.VerifyLoginCode(ctx, email, strings.TrimSpace(code))
	if err := l.deliver(t, func() {
		if verifyErr == nil {
			l.step = StepLoggedIn
		}
	}, verifyErr); err != nil {
		return nil, err
	}
	return sess, nil
}

// ChangeEmail goes back from EnterCode to EnterEmail.
func (l *Login) ChangeEmail() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.step != StepEnterCode {
		return fmt.Errorf("%w: cannot change email in step %s", models.ErrStateConflict, l.step)
	}
	l.step = StepEnterEmail
	return nil
}

// Dismiss closes the dialog. Replies still in flight are discarded.
func (l *Login) Dismiss() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dialog.Close()
}

// Reopen starts a fresh dialog at EnterEmail.
func (l *Login) Reopen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticket = l.dialog.Open()
	l.step = StepEnterEmail
	l.email = ""
}
