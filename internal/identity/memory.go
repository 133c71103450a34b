package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/models"
	pkgauth "github.com/cardswap/cardswap/pkg/auth"
	"github.com/cardswap/cardswap/pkg/logger"
	"github.com/google/uuid"
)

// Mailer delivers the messages the offline provider sends.
type Mailer interface {
	SendLoginCode(ctx context.Context, email, code, link string, expiresAt time.Time) error
	SendConfirmation(ctx context.Context, email, link string, expiresAt time.Time) error
}

// MemoryConfig configures the offline provider.
type MemoryConfig struct {
	Tokens          *auth.TokenManager
	Codes           *auth.CodeIssuer
	Mailer          Mailer
	Store           SessionStore
	Logger          *slog.Logger
	Now             func() time.Time
	CallbackURL     string // links in emails point here
	CodeTTL         time.Duration
	ConfirmationTTL time.Duration
	RefreshTokenTTL time.Duration
	ResendCooldown  time.Duration
	MaxCodeAttempts int
	PasswordCost    int
	// FailureDelay pads rejected codes and passwords. Nil disables it.
	FailureDelay *auth.FailureDelay
}

// Memory is an identity provider held entirely in process. It issues real
// signed sessions and emails real codes, so it stands in for the hosted
// provider during development and in tests.
type Memory struct {
	cfg    MemoryConfig
	tokens *auth.TokenManager
	logger *slog.Logger
	now    func() time.Time
	slot   *slot

	mu            sync.Mutex
	users         map[string]*models.User // by lowercased email
	codes         map[string]*models.LoginCode
	confirmations map[string]*models.ConfirmationToken // by token hash
	grants        map[string]refreshGrant              // by refresh token hash
	oauthGrants   map[string]string                    // code hash to email
}

type refreshGrant struct {
	userID    string
	sessionID string
	expiresAt time.Time
}

var (
	_ Provider      = (*Memory)(nil)
	_ CodeExchanger = (*Memory)(nil)
	_ Refresher     = (*Memory)(nil)
)

// NewMemory creates the offline provider.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if cfg.Mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if cfg.Codes == nil {
		cfg.Codes = auth.NewCodeIssuer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CallbackURL == "" {
		cfg.CallbackURL = "http://127.0.0.1:8765/auth/callback"
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 5
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = pkgauth.BcryptCost
	}

	return &Memory{
		cfg:           cfg,
		tokens:        cfg.Tokens.WithClock(cfg.Now),
		logger:        cfg.Logger,
		now:           cfg.Now,
		slot:          newSlot(cfg.Store, cfg.Now, cfg.Logger),
		users:         make(map[string]*models.User),
		codes:         make(map[string]*models.LoginCode),
		confirmations: make(map[string]*models.ConfirmationToken),
		grants:        make(map[string]refreshGrant),
		oauthGrants:   make(map[string]string),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *Memory) link(param, value string) string {
	return m.cfg.CallbackURL + "?" + url.Values{param: {value}}.Encode()
}

// SignUp creates an unconfirmed account and emails a confirmation link.
func (m *Memory) SignUp(ctx context.Context, req SignUpRequest) (*models.Identity, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("sign up: %w: email is required", models.ErrValidation)
	}

	var hash string
	if req.Password != "" {
		if err := pkgauth.ValidatePassword(req.Password); err != nil {
			return nil, fmt.Errorf("sign up: %w: %v", models.ErrValidation, err)
		}
		h, err := pkgauth.HashPassword(req.Password, m.cfg.PasswordCost)
		if err != nil {
			return nil, fmt.Errorf("sign up: %w", err)
		}
		hash = h
	}

	_, token, err := m.cfg.Codes.Issue()
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	now := m.now()
	m.mu.Lock()
	if _, exists := m.users[email]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("sign up: %w", models.ErrConflict)
	}
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Profile:      req.Profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[email] = user
	confirmation := &models.ConfirmationToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: auth.HashSecret(token),
		Email:     email,
		ExpiresAt: now.Add(m.cfg.ConfirmationTTL),
		CreatedAt: now,
	}
	m.confirmations[confirmation.TokenHash] = confirmation
	identity := user.ToIdentity()
	m.mu.Unlock()

	if err := m.cfg.Mailer.SendConfirmation(ctx, email, m.link("confirm", token), confirmation.ExpiresAt); err != nil {
		m.logger.Error("failed to send confirmation email",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
	}

	m.logger.Info("account created", slog.String("user_id", identity.ID))
	return &identity, nil
}

// ConfirmEmail redeems a confirmation link token.
func (m *Memory) ConfirmEmail(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.confirmations[auth.HashSecret(token)]
	if !ok || !c.IsValid(m.now()) {
		return fmt.Errorf("confirm email: %w", models.ErrInvalidCredentials)
	}

	now := m.now()
	c.UsedAt = &now
	if user, ok := m.users[c.Email]; ok {
		user.EmailVerified = true
		user.UpdatedAt = now
	}
	return nil
}

// SendLoginCode issues a one-time code for an existing, confirmed account.
func (m *Memory) SendLoginCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	now := m.now()

	m.mu.Lock()
	user, ok := m.users[email]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("send login code: %w", models.ErrNotFound)
	}
	if !user.EmailVerified {
		m.mu.Unlock()
		return fmt.Errorf("send login code: %w", models.ErrEmailNotVerified)
	}
	if prev, ok := m.codes[email]; ok && prev.IsUsable(now) && now.Sub(prev.CreatedAt) < m.cfg.ResendCooldown {
		m.mu.Unlock()
		return fmt.Errorf("send login code: %w", models.ErrRateLimited)
	}
	m.mu.Unlock()

	code, link, err := m.cfg.Codes.Issue()
	if err != nil {
		return fmt.Errorf("send login code: %w", err)
	}
	challenge := &models.LoginCode{
		ID:        uuid.New().String(),
		Email:     email,
		CodeHash:  auth.HashSecret(code),
		LinkHash:  auth.HashSecret(link),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.CodeTTL),
	}

	m.mu.Lock()
	m.codes[email] = challenge
	m.mu.Unlock()

	if err := m.cfg.Mailer.SendLoginCode(ctx, email, code, m.link("code", link), challenge.ExpiresAt); err != nil {
		return fmt.Errorf("send login code: %w: %v", models.ErrProviderUnavailable, err)
	}
	return nil
}

// VerifyLoginCode redeems a one-time code. Each wrong guess counts against
// the challenge; once the attempts are used up the challenge is dropped.
func (m *Memory) VerifyLoginCode(ctx context.Context, email, code string) (_ *models.Session, err error) {
	defer m.padFailure(ctx, time.Now(), &err)

	email = normalizeEmail(email)
	now := m.now()

	m.mu.Lock()
	challenge, ok := m.codes[email]
	if !ok || !challenge.IsUsable(now) {
		m.mu.Unlock()
		return nil, fmt.Errorf("verify login code: %w", models.ErrInvalidCredentials)
	}
	if !auth.MatchSecret(code, challenge.CodeHash) {
		challenge.Attempts++
		if challenge.Attempts >= m.cfg.MaxCodeAttempts {
			delete(m.codes, email)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("verify login code: %w", models.ErrInvalidCredentials)
	}
	challenge.ConsumedAt = &now
	delete(m.codes, email)
	user := m.users[email]
	m.mu.Unlock()

	if user == nil {
		return nil, fmt.Errorf("verify login code: %w", models.ErrNotFound)
	}
	return m.startSession(ctx, user)
}

// SignInWithPassword checks the password of a confirmed account.
func (m *Memory) SignInWithPassword(ctx context.Context, email, password string) (_ *models.Session, err error) {
	defer m.padFailure(ctx, time.Now(), &err)

	email = normalizeEmail(email)

	m.mu.Lock()
	user, ok := m.users[email]
	var snapshot models.User
	if ok {
		snapshot = *user
	}
	m.mu.Unlock()

	if !ok || snapshot.PasswordHash == "" {
		return nil, fmt.Errorf("password sign-in: %w", models.ErrInvalidCredentials)
	}
	if err := pkgauth.ComparePassword(snapshot.PasswordHash, password); err != nil {
		return nil, fmt.Errorf("password sign-in: %w", models.ErrInvalidCredentials)
	}
	if !snapshot.EmailVerified {
		return nil, fmt.Errorf("password sign-in: %w", models.ErrEmailNotVerified)
	}
	return m.startSession(ctx, &snapshot)
}

// padFailure delays rejected credentials by the configured failure delay.
func (m *Memory) padFailure(ctx context.Context, start time.Time, err *error) {
	if *err != nil && errors.Is(*err, models.ErrInvalidCredentials) {
		m.cfg.FailureDelay.WaitFrom(ctx, start)
	}
}

// OAuthRedirectURL simulates the provider's consent screen: the returned URL
// points straight at redirectTo with a code that ExchangeCode accepts. The
// account is created confirmed on first use.
func (m *Memory) OAuthRedirectURL(_ context.Context, provider, redirectTo string) (string, error) {
	if !models.IsOAuthProvider(provider) {
		return "", fmt.Errorf("%w: unsupported OAuth provider %q", models.ErrBadRequest, provider)
	}
	target, err := url.Parse(redirectTo)
	if err != nil || target.Scheme == "" {
		return "", fmt.Errorf("%w: invalid redirect URL", models.ErrBadRequest)
	}

	_, code, err := m.cfg.Codes.Issue()
	if err != nil {
		return "", err
	}

	email := provider + "-user@oauth.invalid"
	now := m.now()
	m.mu.Lock()
	if _, ok := m.users[email]; !ok {
		m.users[email] = &models.User{
			ID:            uuid.New().String(),
			Email:         email,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	m.oauthGrants[auth.HashSecret(code)] = email
	m.mu.Unlock()

	q := target.Query()
	q.Set("code", code)
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// ExchangeCode redeems a magic link token or a simulated OAuth code.
func (m *Memory) ExchangeCode(ctx context.Context, code string) (*models.Session, error) {
	hash := auth.HashSecret(code)
	now := m.now()

	m.mu.Lock()
	var user *models.User
	if email, ok := m.oauthGrants[hash]; ok {
		delete(m.oauthGrants, hash)
		user = m.users[email]
	} else {
		for email, challenge := range m.codes {
			if challenge.LinkHash == hash && challenge.IsUsable(now) {
				delete(m.codes, email)
				user = m.users[email]
				break
			}
		}
	}
	m.mu.Unlock()

	if user == nil {
		return nil, fmt.Errorf("exchange code: %w", models.ErrInvalidCredentials)
	}
	return m.startSession(ctx, user)
}

func (m *Memory) startSession(ctx context.Context, user *models.User) (*models.Session, error) {
	sess, err := m.issue(user.ToIdentity(), uuid.New().String())
	if err != nil {
		return nil, err
	}
	m.slot.set(ctx, models.SessionSignedIn, sess)
	return sess, nil
}

func (m *Memory) issue(identity models.Identity, sessionID string) (*models.Session, error) {
	access, expiresAt, err := m.tokens.GenerateAccessToken(identity, sessionID)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.grants[auth.HashSecret(refresh)] = refreshGrant{
		userID:    identity.ID,
		sessionID: sessionID,
		expiresAt: m.now().Add(m.cfg.RefreshTokenTTL),
	}
	m.mu.Unlock()

	return &models.Session{
		User:         identity,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token and issues a new access token.
func (m *Memory) Refresh(ctx context.Context) (*models.Session, error) {
	current, err := m.slot.restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("refresh session: %w", models.ErrNotAuthenticated)
	}

	hash := auth.HashSecret(current.RefreshToken)
	m.mu.Lock()
	grant, ok := m.grants[hash]
	delete(m.grants, hash)
	var identity models.Identity
	if ok {
		for _, u := range m.users {
			if u.ID == grant.userID {
				identity = u.ToIdentity()
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok || m.now().After(grant.expiresAt) || identity.ID == "" {
		m.slot.clear(ctx)
		return nil, fmt.Errorf("refresh session: %w", models.ErrUnauthorized)
	}

	sess, err := m.issue(identity, grant.sessionID)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	m.slot.set(ctx, models.SessionTokenRefreshed, sess)
	return sess, nil
}

// SignOut revokes the refresh token and clears the session.
func (m *Memory) SignOut(ctx context.Context) error {
	current, err := m.slot.restore(ctx)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if current == nil {
		return nil
	}

	m.mu.Lock()
	delete(m.grants, auth.HashSecret(current.RefreshToken))
	m.mu.Unlock()

	m.slot.clear(ctx)
	return nil
}

// GetSession restores the persisted session, refreshing an expired one.
func (m *Memory) GetSession(ctx context.Context) (*models.Session, error) {
	current, err := m.slot.restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if current == nil || !current.Expired(m.now()) {
		return current, nil
	}

	sess, err := m.Refresh(ctx)
	if errors.Is(err, models.ErrUnauthorized) {
		return nil, nil
	}
	return sess, err
}

// Subscribe delivers session changes in order.
func (m *Memory) Subscribe() (<-chan models.SessionEvent, func()) {
	return m.slot.subscribe()
}
