package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/google/uuid"
	authapi "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
	"golang.org/x/oauth2"
)

const gotrueBasePath = "/auth/v1"

// GoTrueConfig configures the hosted identity provider adapter.
type GoTrueConfig struct {
	URL    string // project URL; auth endpoints live under /auth/v1
	APIKey string // public (anon) key sent with every request
	// RedirectURL is sent with code verification; the provider requires one.
	RedirectURL string
	HTTPClient  *http.Client
	Store       SessionStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// GoTrue talks to a GoTrue-compatible auth service through its Go client.
type GoTrue struct {
	baseURL     string
	apiKey      string
	redirectURL string
	client      authapi.Client
	http        *http.Client
	logger      *slog.Logger
	slot        *slot
	now         func() time.Time

	// PKCE verifier of the redirect flow awaiting ExchangeCode
	mu       sync.Mutex
	verifier string
}

var (
	_ Provider      = (*GoTrue)(nil)
	_ CodeExchanger = (*GoTrue)(nil)
	_ Refresher     = (*GoTrue)(nil)
)

// NewGoTrue creates the adapter.
func NewGoTrue(cfg GoTrueConfig) (*GoTrue, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("identity provider URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid identity provider URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = cfg.URL
	}

	baseURL := strings.TrimRight(cfg.URL, "/") + gotrueBasePath
	return &GoTrue{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		redirectURL: redirect,
		client:      authapi.New("", cfg.APIKey).WithCustomAuthURL(baseURL),
		http:        httpClient,
		logger:      logger,
		slot:        newSlot(cfg.Store, now, logger),
		now:         now,
	}, nil
}

// contextTransport binds the requests of one call to ctx. The client's
// endpoints build their requests without a context.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(r.WithContext(t.ctx))
}

// api returns a client whose requests carry ctx and are authorized with
// bearer, or with the API key when bearer is empty.
func (g *GoTrue) api(ctx context.Context, bearer string) authapi.Client {
	next := g.http.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if bearer == "" {
		bearer = g.apiKey
	}
	return g.client.
		WithToken(bearer).
		WithClient(http.Client{
			Transport: contextTransport{ctx: ctx, next: next},
			Timeout:   g.http.Timeout,
		})
}

func userIdentity(u types.User) models.Identity {
	meta := func(key string) string {
		v, _ := u.UserMetadata[key].(string)
		return v
	}
	id := ""
	if u.ID != uuid.Nil {
		id = u.ID.String()
	}
	return models.Identity{
		ID:             id,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmedAt != nil,
		Profile: models.Profile{
			Name:    meta("name"),
			Phone:   meta("phone"),
			Country: meta("country"),
			City:    meta("city"),
		},
		CreatedAt: u.CreatedAt,
	}
}

func (g *GoTrue) toSession(s types.Session) (*models.Session, error) {
	if s.AccessToken == "" || s.User.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: response carried no session", models.ErrProviderUnavailable)
	}

	var expiresAt time.Time
	switch {
	case s.ExpiresAt > 0:
		expiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		expiresAt = g.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}

	return &models.Session{
		User:         userIdentity(s.User),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// startPKCE creates a verifier for a redirect flow and returns its challenge.
// Starting another flow replaces the pending verifier.
func (g *GoTrue) startPKCE() string {
	verifier := oauth2.GenerateVerifier()
	g.mu.Lock()
	g.verifier = verifier
	g.mu.Unlock()
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func (g *GoTrue) takeVerifier() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.verifier
	g.verifier = ""
	return v
}

// SendLoginCode emails a one-time code. It never creates an account.
func (g *GoTrue) SendLoginCode(ctx context.Context, email string) error {
	err := g.api(ctx, "").OTP(types.OTPRequest{Email: email, CreateUser: false})
	if err != nil {
		return clientError("send login code", err)
	}
	return nil
}

// VerifyLoginCode redeems a one-time code.
func (g *GoTrue) VerifyLoginCode(ctx context.Context, email, code string) (*models.Session, error) {
	resp, err := g.api(ctx, "").VerifyForUser(types.VerifyForUserRequest{
		Type:       types.VerificationType("email"),
		Token:      code,
		Email:      email,
		RedirectTo: g.redirectURL,
	})
	if err != nil {
		return nil, clientError("verify login code", err)
	}
	return g.signedIn(ctx, "verify login code", resp.Session)
}

// SignInWithPassword signs in with email and password.
func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := g.api(ctx, "").SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, clientError("password sign-in", err)
	}
	return g.signedIn(ctx, "password sign-in", resp.Session)
}

// ExchangeCode finishes an OAuth sign-in started by this adapter.
func (g *GoTrue) ExchangeCode(ctx context.Context, code string) (*models.Session, error) {
	verifier := g.takeVerifier()
	if verifier == "" {
		return nil, fmt.Errorf("exchange code: %w: no sign-in redirect is pending", models.ErrBadRequest)
	}
	resp, err := g.api(ctx, "").Token(types.TokenRequest{
		GrantType:    "pkce",
		Code:         code,
		CodeVerifier: verifier,
	})
	if err != nil {
		return nil, clientError("exchange code", err)
	}
	return g.signedIn(ctx, "exchange code", resp.Session)
}

func (g *GoTrue) signedIn(ctx context.Context, op string, s types.Session) (*models.Session, error) {
	sess, err := g.toSession(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.slot.set(ctx, models.SessionSignedIn, sess)
	return sess, nil
}

// OAuthRedirectURL returns the provider's authorize URL for a PKCE flow. The
// URL is built locally; the provider is first contacted by the browser.
func (g *GoTrue) OAuthRedirectURL(_ context.Context, provider, redirectTo string) (string, error) {
	if !models.IsOAuthProvider(provider) {
		return "", fmt.Errorf("%w: unsupported OAuth provider %q", models.ErrBadRequest, provider)
	}

	query := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {g.startPKCE()},
		"code_challenge_method": {"s256"},
	}
	return g.baseURL + "/authorize?" + query.Encode(), nil
}

// Refresh trades the refresh token for a new session. A rejected refresh
// token ends the session.
func (g *GoTrue) Refresh(ctx context.Context) (*models.Session, error) {
	current, err := g.slot.restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("refresh session: %w", models.ErrNotAuthenticated)
	}

	resp, err := g.api(ctx, "").RefreshToken(current.RefreshToken)
	if err != nil {
		err = clientError("refresh session", err)
		if isSessionRejected(err) {
			g.slot.clear(ctx)
		}
		return nil, err
	}

	sess, err := g.toSession(resp.Session)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	g.slot.set(ctx, models.SessionTokenRefreshed, sess)
	return sess, nil
}

// ReloadUser fetches the current user and publishes USER_UPDATED.
func (g *GoTrue) ReloadUser(ctx context.Context) (*models.Session, error) {
	current, err := g.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("reload user: %w", models.ErrNotAuthenticated)
	}

	resp, err := g.api(ctx, current.AccessToken).GetUser()
	if err != nil {
		return nil, clientError("reload user", err)
	}

	current.User = userIdentity(resp.User)
	g.slot.set(ctx, models.SessionUserUpdated, current)
	return current, nil
}

// SignOut revokes the session on the provider and clears it locally. A
// session the provider no longer knows is cleared as well.
func (g *GoTrue) SignOut(ctx context.Context) error {
	current, err := g.slot.restore(ctx)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if current == nil {
		return nil
	}

	if err := g.api(ctx, current.AccessToken).Logout(); err != nil {
		if err = clientError("sign out", err); !isSessionRejected(err) {
			return err
		}
	}

	g.slot.clear(ctx)
	return nil
}

// GetSession restores the persisted session, refreshing it when the access
// token has expired.
func (g *GoTrue) GetSession(ctx context.Context) (*models.Session, error) {
	current, err := g.slot.restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if current == nil || !current.Expired(g.now()) {
		return current, nil
	}

	g.logger.Debug("persisted session expired, refreshing")
	sess, err := g.Refresh(ctx)
	if err != nil {
		if isSessionRejected(err) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// Subscribe delivers session changes in order.
func (g *GoTrue) Subscribe() (<-chan models.SessionEvent, func()) {
	return g.slot.subscribe()
}

// SignUp creates an account. Without a password the account is created
// through the passwordless endpoint and confirmed by its first code.
func (g *GoTrue) SignUp(ctx context.Context, req SignUpRequest) (*models.Identity, error) {
	data := map[string]any{
		"name":    req.Profile.Name,
		"phone":   req.Profile.Phone,
		"country": req.Profile.Country,
		"city":    req.Profile.City,
	}

	if req.Password == "" {
		err := g.api(ctx, "").OTP(types.OTPRequest{Email: req.Email, CreateUser: true, Data: data})
		if err != nil {
			return nil, clientError("sign up", err)
		}
		return &models.Identity{Email: req.Email, Profile: req.Profile}, nil
	}

	resp, err := g.api(ctx, "").Signup(types.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
		Data:     data,
	})
	if err != nil {
		return nil, clientError("sign up", err)
	}

	// An existing address is answered with an obfuscated user that has no
	// identities.
	if resp.User.Identities != nil && len(resp.User.Identities) == 0 {
		return nil, fmt.Errorf("sign up: %w", models.ErrConflict)
	}

	identity := userIdentity(resp.User)
	return &identity, nil
}

func isSessionRejected(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch {
	case pe.Status == http.StatusUnauthorized, pe.Status == http.StatusForbidden, pe.Status == http.StatusNotFound:
		return true
	case codeSentinels[pe.Code] == models.ErrUnauthorized:
		return true
	}
	return strings.Contains(strings.ToLower(pe.Message), "refresh token")
}
