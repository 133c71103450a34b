// Package session owns the process-wide authentication state. The Manager is
// the only writer of the current session; everything else reads snapshots
// through State or Subscribe.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/cardswap/cardswap/internal/validation"
	"github.com/cardswap/cardswap/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ProfileStore holds the profile records reconciled with new accounts.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.ProfileRecord, error)
	GetByEmail(ctx context.Context, email string) (*models.ProfileRecord, error)
	Create(ctx context.Context, rec *models.ProfileRecord) (*models.ProfileRecord, error)
}

// Config configures a Manager.
type Config struct {
	Provider identity.Provider
	Profiles ProfileStore // optional
	Logger   *slog.Logger
	// RedirectURL is where OAuth sign-ins return to.
	RedirectURL string
	// ProfileTimeout bounds each profile reconciliation.
	ProfileTimeout time.Duration
}

// errNothingToDo ends an operation that has no effect in the current state.
var errNothingToDo = errors.New("nothing to do")

// Manager is the authentication state machine.
type Manager struct {
	provider       identity.Provider
	profiles       ProfileStore
	logger         *slog.Logger
	audit          *logger.AuditLogger
	redirectURL    string
	profileTimeout time.Duration

	group singleflight.Group

	mu       sync.Mutex
	state    State
	inflight Operation
	subs     map[uint64]chan State
	nextSub  uint64
	// reconciled is the user whose profile was last reconciled
	reconciled string
	// pushed is set when the provider pushed a change while an operation
	// was in flight. The pushed session then outranks the operation's result.
	pushed bool

	ready        chan struct{}
	readyOnce    sync.Once
	startOnce    sync.Once
	closeOnce    sync.Once
	done         chan struct{}
	cancelEvents func()
	wg           sync.WaitGroup
}

// NewManager creates a manager in the unresolved Unauthenticated state.
// Call Start to resolve it.
func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.ProfileTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		provider:       cfg.Provider,
		profiles:       cfg.Profiles,
		logger:         log,
		audit:          logger.NewAuditLogger(log),
		redirectURL:    cfg.RedirectURL,
		profileTimeout: timeout,
		subs:           make(map[uint64]chan State),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		cancelEvents:   func() {},
	}
}

// Start subscribes to provider session changes and asks the provider whether
// a prior session persists. The state is Resolved once Start returns.
func (m *Manager) Start(ctx context.Context) error {
	var startErr error
	m.startOnce.Do(func() {
		events, cancel := m.provider.Subscribe()
		m.mu.Lock()
		m.cancelEvents = cancel
		m.mu.Unlock()

		m.wg.Add(1)
		go m.watch(events)

		sess, err := m.provider.GetSession(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		switch {
		case err != nil:
			ae := newAuthError(err)
			m.logger.Warn("failed to restore session", "reason", ae.Reason, "error", err)
			if m.state.Session == nil {
				m.state.Status = Failed
				m.state.Err = ae
			}
			startErr = ae
		case sess != nil:
			if m.state.Session == nil {
				m.state.Session = sess
			}
			m.state.Status = Authenticated
		case m.state.Session == nil:
			m.state.Status = Unauthenticated
		}
		m.resolveLocked()
		m.notifyLocked()
	})
	return startErr
}

// Close stops observing the provider and closes every subscription.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		close(m.done)
		cancel := m.cancelEvents
		m.mu.Unlock()
		cancel()
		m.wg.Wait()

		m.mu.Lock()
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
		m.mu.Unlock()
	})
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Ready is closed once the state is resolved.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Subscribe delivers the latest state after every change. A slow reader
// skips intermediate states but always sees the most recent one.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	ch <- m.state.clone()
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

func (m *Manager) resolveLocked() {
	m.state.Resolved = true
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Manager) notifyLocked() {
	m.state.Version++
	snapshot := m.state.clone()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// run executes fn as op. Concurrent calls with the same op and key share one
// execution; any other operation started meanwhile fails with
// models.ErrOperationInProgress.
func (m *Manager) run(ctx context.Context, op Operation, key string, fn func(context.Context) (any, error)) (any, error) {
	v, err, _ := m.group.Do(string(op)+"\x00"+key, func() (any, error) {
		if err := m.begin(op); err != nil {
			return nil, err
		}
		return fn(ctx)
	})
	return v, err
}

func (m *Manager) begin(op Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight != "" {
		return fmt.Errorf("%s: %w (%s)", op, models.ErrOperationInProgress, m.inflight)
	}

	switch op {
	case OpLogout:
		if m.state.Session == nil {
			return errNothingToDo
		}
	default:
		if m.state.Status == Authenticated {
			return fmt.Errorf("%s: %w: already signed in", op, models.ErrStateConflict)
		}
	}

	m.inflight = op
	m.pushed = false
	m.state.Status = Authenticating
	m.state.Operation = op
	m.state.Err = nil
	m.notifyLocked()
	return nil
}

// finish leaves Authenticating. update sets the resulting state; a change the
// provider pushed meanwhile then decides Session and Status.
func (m *Manager) finish(update func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pushed := m.state.Session
	m.inflight = ""
	m.state.Operation = ""
	update(&m.state)
	if m.pushed {
		m.settlePushedLocked(pushed)
	}
	m.pushed = false
	m.resolveLocked()
	m.notifyLocked()
}

func (m *Manager) settlePushedLocked(sess *models.Session) {
	m.state.Session = sess
	switch {
	case sess != nil && m.state.Status != Authenticated:
		m.state.Status = Authenticated
		m.state.Err = nil
		m.state.AwaitingRedirect = ""
		m.state.CodeSentTo = ""
		m.state.PendingConfirmation = ""
	case sess == nil && m.state.Status == Authenticated:
		m.state.Status = Unauthenticated
		m.state.Err = nil
	}
}

func (m *Manager) fail(op Operation, err error) *AuthError {
	ae := newAuthError(err)
	m.finish(func(s *State) {
		s.Status = Failed
		s.Err = ae
	})
	m.logger.Info("authentication operation failed",
		slog.String("operation", string(op)),
		slog.String("reason", string(ae.Reason)),
		slog.Any("error", err))
	return ae
}

// SignUp creates an account. It never signs in: the state returns to
// Unauthenticated with the address awaiting confirmation.
func (m *Manager) SignUp(ctx context.Context, req identity.SignUpRequest) (*models.Identity, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	v, err := m.run(ctx, OpSignUp, req.Email, func(ctx context.Context) (any, error) {
		created, err := m.provider.SignUp(ctx, req)
		if err != nil {
			m.audit.LogAccountAction("sign_up_failed", "", "", map[string]string{
				"email": logger.SanitizedEmail(req.Email),
			})
			return nil, m.fail(OpSignUp, err)
		}

		m.finish(func(s *State) {
			s.Status = Unauthenticated
			s.PendingConfirmation = req.Email
			s.Err = nil
		})
		m.audit.LogAccountAction("sign_up", created.ID, "", map[string]string{
			"email": logger.SanitizedEmail(req.Email),
		})

		rec := *created
		if rec.Email == "" {
			rec.Email = req.Email
		}
		rec.Profile = req.Profile
		m.reconcileProfile(ctx, rec)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Identity), nil
}

// RequestLoginCode starts passwordless sign-in by emailing a code and a magic
// link. Requesting again resends.
func (m *Manager) RequestLoginCode(ctx context.Context, email string) error {
	if err := validation.Email(email); err != nil {
		return err
	}

	_, err := m.run(ctx, OpRequestCode, email, func(ctx context.Context) (any, error) {
		if err := m.provider.SendLoginCode(ctx, email); err != nil {
			return nil, m.fail(OpRequestCode, err)
		}
		m.finish(func(s *State) {
			s.Status = Unauthenticated
			s.CodeSentTo = email
			s.Err = nil
		})
		m.logger.Info("login code sent", slog.String("email", logger.SanitizedEmail(email)))
		return nil, nil
	})
	return err
}

// VerifyLoginCode completes passwordless sign-in.
func (m *Manager) VerifyLoginCode(ctx context.Context, email, code string) (*models.Session, error) {
	if err := validation.Email(email); err != nil {
		return nil, err
	}
	if err := validation.Var("code", code, "required,numeric,min=6,max=8"); err != nil {
		return nil, err
	}

	return m.signIn(ctx, OpVerifyCode, email+"\x00"+code, email, func(ctx context.Context) (*models.Session, error) {
		return m.provider.VerifyLoginCode(ctx, email, code)
	})
}

// LoginWithPassword signs in with email and password.
func (m *Manager) LoginWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	if err := validation.Email(email); err != nil {
		return nil, err
	}
	if err := validation.Var("password", password, "required"); err != nil {
		return nil, err
	}

	return m.signIn(ctx, OpPassword, email+"\x00"+password, email, func(ctx context.Context) (*models.Session, error) {
		return m.provider.SignInWithPassword(ctx, email, password)
	})
}

func (m *Manager) signIn(ctx context.Context, op Operation, key, email string, call func(context.Context) (*models.Session, error)) (*models.Session, error) {
	v, err := m.run(ctx, op, key, func(ctx context.Context) (any, error) {
		sess, err := call(ctx)
		if err != nil {
			ae := m.fail(op, err)
			m.audit.LogAuthAttempt(logger.AuditEvent{
				EventType:     "login",
				Success:       false,
				FailureReason: string(ae.Reason),
				Metadata:      map[string]string{"method": string(op), "email": logger.SanitizedEmail(email)},
			})
			return nil, ae
		}

		m.finish(func(s *State) {
			s.Status = Authenticated
			s.Session = sess
			s.Err = nil
			s.CodeSentTo = ""
			s.PendingConfirmation = ""
			s.AwaitingRedirect = ""
			if !m.pushed {
				m.reconcileOnceLocked(sess.User)
			}
		})
		m.audit.LogAuthAttempt(logger.AuditEvent{
			EventType: "login",
			UserID:    sess.User.ID,
			Success:   true,
			Metadata:  map[string]string{"method": string(op)},
		})
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Session), nil
}

// BeginOAuthLogin returns the URL the user must open to sign in with an
// OAuth provider. The state stays Unauthenticated until the provider pushes
// the session after the redirect returns.
func (m *Manager) BeginOAuthLogin(ctx context.Context, provider string) (string, error) {
	if !models.IsOAuthProvider(provider) {
		return "", &validation.Error{Fields: []validation.FieldError{{Field: "provider", Message: "must be google, github or apple"}}}
	}

	v, err := m.run(ctx, OpOAuth, provider, func(ctx context.Context) (any, error) {
		link, err := m.provider.OAuthRedirectURL(ctx, provider, m.redirectURL)
		if err != nil {
			return nil, m.fail(OpOAuth, err)
		}
		m.finish(func(s *State) {
			if s.Session == nil {
				s.Status = Unauthenticated
			}
			s.AwaitingRedirect = provider
			s.Err = nil
		})
		return link, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RedirectFailed records a redirect sign-in that came back refused or with a
// code the provider rejected. A session that arrived meanwhile is kept.
func (m *Manager) RedirectFailed(err error) *AuthError {
	ae := newAuthError(err)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.AwaitingRedirect = ""
	if m.inflight == "" && m.state.Session == nil {
		m.state.Status = Failed
		m.state.Err = ae
	}
	m.resolveLocked()
	m.notifyLocked()

	m.logger.Info("redirect sign-in failed",
		slog.String("reason", string(ae.Reason)),
		slog.Any("error", err))
	return ae
}

// Logout ends the session. Without a session it succeeds and changes
// nothing. If the provider fails the session is kept and the error returned.
func (m *Manager) Logout(ctx context.Context) error {
	_, err := m.run(ctx, OpLogout, "", func(ctx context.Context) (any, error) {
		userID := ""
		if st := m.State(); st.Session != nil {
			userID = st.Session.User.ID
		}

		if err := m.provider.SignOut(ctx); err != nil {
			ae := newAuthError(err)
			m.finish(func(s *State) {
				s.Status = Authenticated
				s.Err = ae
			})
			m.logger.Warn("logout failed, session kept", slog.String("reason", string(ae.Reason)), slog.Any("error", err))
			return nil, ae
		}

		m.finish(func(s *State) {
			// The provider dropped its session last; earlier pushes are stale.
			m.pushed = false
			s.Status = Unauthenticated
			s.Session = nil
			s.Err = nil
			s.AwaitingRedirect = ""
			m.reconciled = ""
		})
		m.audit.LogAccountAction("logout", userID, "", nil)
		return nil, nil
	})
	if errors.Is(err, errNothingToDo) {
		return nil
	}
	return err
}

// watch applies provider change notifications in the order received.
func (m *Manager) watch(events <-chan models.SessionEvent) {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.apply(ev)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) apply(ev models.SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("session change", slog.String("event", string(ev.Type)))

	switch ev.Type {
	case models.SessionSignedIn, models.SessionTokenRefreshed, models.SessionUserUpdated:
		if ev.Session == nil {
			return
		}
		m.state.Session = ev.Session
		// An operation in flight settles the status itself when it returns.
		if m.inflight != "" {
			m.pushed = true
		} else {
			m.state.Status = Authenticated
			m.state.Err = nil
			m.state.AwaitingRedirect = ""
			m.state.CodeSentTo = ""
			m.state.PendingConfirmation = ""
		}
		if ev.Type == models.SessionSignedIn {
			m.reconcileOnceLocked(ev.Session.User)
		}
	case models.SessionSignedOut:
		m.state.Session = nil
		m.reconciled = ""
		if m.inflight != "" {
			m.pushed = true
		} else {
			m.state.Status = Unauthenticated
		}
	default:
		return
	}
	m.resolveLocked()
	m.notifyLocked()
}

// reconcileOnceLocked reconciles user's profile in the background unless it
// was already done for this sign-in.
func (m *Manager) reconcileOnceLocked(user models.Identity) {
	if m.profiles == nil || user.ID == "" || user.ID == m.reconciled {
		return
	}
	select {
	case <-m.done:
		return
	default:
	}
	m.reconciled = user.ID
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconcileProfile(context.Background(), user)
	}()
}

// reconcileProfile makes sure the profile store has a record for user.
// Failures are logged only; they never affect authentication.
func (m *Manager) reconcileProfile(ctx context.Context, user models.Identity) {
	if m.profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.profileTimeout)
	defer cancel()

	var (
		existing *models.ProfileRecord
		err      error
	)
	if user.ID != "" {
		existing, err = m.profiles.GetByID(ctx, user.ID)
	} else {
		existing, err = m.profiles.GetByEmail(ctx, user.Email)
	}
	if err == nil && existing != nil {
		return
	}
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		m.logger.Warn("profile lookup failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if user.ID == "" {
		// The id is assigned when the account first signs in.
		return
	}

	_, err = m.profiles.Create(ctx, &models.ProfileRecord{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Profile.Name,
		Phone:   user.Profile.Phone,
		Country: user.Profile.Country,
		City:    user.Profile.City,
	})
	switch {
	case err == nil:
		m.logger.Info("profile created", slog.String("user_id", user.ID))
	case errors.Is(err, models.ErrConflict):
		// Created concurrently.
	default:
		m.logger.Warn("profile creation failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}
