package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID = "6f1c1d2e-8a3b-4c5d-9e0f-112233445566"
	newUserID  = "0b7e4a52-3d9c-4f61-a2b8-5c6d7e8f9a01"
)

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	auth   string
	apikey string
	body   map[string]any
}

// fakeGoTrue serves canned responses per "METHOD /path" and records requests.
type fakeGoTrue struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	t.Helper()
	f := &fakeGoTrue{responses: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			auth:   r.Header.Get("Authorization"),
			apikey: r.Header.Get("apikey"),
			body:   body,
		})
		handler, ok := f.responses[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) on(route string, status int, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[route] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (f *fakeGoTrue) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func sessionPayload(access string, expiresAt time.Time) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": "refresh-" + access,
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    expiresAt.Unix(),
		"user": map[string]any{
			"id":                 testUserID,
			"email":              "a@example.com",
			"email_confirmed_at": "2026-01-01T00:00:00Z",
			"created_at":         "2026-01-01T00:00:00Z",
			"user_metadata":      map[string]any{"name": "Asha", "city": "Mumbai"},
		},
	}
}

func newTestGoTrue(t *testing.T, srv *httptest.Server, store SessionStore, clock *fakeClock) *GoTrue {
	t.Helper()
	g, err := NewGoTrue(GoTrueConfig{
		URL:         srv.URL,
		APIKey:      "anon-key",
		RedirectURL: "http://127.0.0.1:8765/auth/callback",
		Store:       store,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	return g
}

func TestNewGoTrue_RequiresURL(t *testing.T) {
	_, err := NewGoTrue(GoTrueConfig{})
	assert.Error(t, err)

	_, err = NewGoTrue(GoTrueConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestGoTrue_SendLoginCode(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/otp", http.StatusOK, map[string]any{})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	require.NoError(t, g.SendLoginCode(context.Background(), "a@example.com"))

	req := fake.last()
	assert.Equal(t, "anon-key", req.apikey)
	assert.Equal(t, "Bearer anon-key", req.auth)
	assert.Equal(t, "a@example.com", req.body["email"])
	assert.Equal(t, false, req.body["create_user"])
}

func TestGoTrue_SendLoginCodeUnknownAccount(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/otp", http.StatusUnprocessableEntity, map[string]any{
		"code": 422, "error_code": "otp_disabled", "msg": "Signups not allowed for otp",
	})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	err := g.SendLoginCode(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGoTrue_VerifyLoginCode(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("POST /auth/v1/verify", http.StatusOK, sessionPayload("tok-1", clock.Now().Add(time.Hour)))
	store := &memStore{}
	g := newTestGoTrue(t, srv, store, clock)

	events, cancel := g.Subscribe()
	defer cancel()

	sess, err := g.VerifyLoginCode(context.Background(), "a@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.AccessToken)
	assert.Equal(t, testUserID, sess.User.ID)
	assert.True(t, sess.User.EmailConfirmed)
	assert.Equal(t, "Asha", sess.User.Profile.Name)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), sess.ExpiresAt.Unix())

	req := fake.last()
	assert.Equal(t, "email", req.body["type"])
	assert.Equal(t, "123456", req.body["token"])
	assert.Equal(t, "a@example.com", req.body["email"])
	assert.Equal(t, "http://127.0.0.1:8765/auth/callback", req.body["redirect_to"])

	assert.Equal(t, models.SessionSignedIn, receive(t, events).Type)
	assert.Equal(t, "tok-1", store.session.AccessToken)
}

func TestGoTrue_VerifyLoginCodeRejected(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/verify", http.StatusForbidden, map[string]any{
		"code": 403, "error_code": "otp_expired", "msg": "Token has expired or is invalid",
	})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	_, err := g.VerifyLoginCode(context.Background(), "a@example.com", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	sess, err := g.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGoTrue_PasswordSignInUnconfirmed(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/token", http.StatusBadRequest, map[string]any{
		"error": "invalid_grant", "error_description": "Email not confirmed",
	})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	_, err := g.SignInWithPassword(context.Background(), "a@example.com", "secret")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
	assert.Equal(t, "password", fake.last().query.Get("grant_type"))
}

func TestGoTrue_ServerErrorIsUnavailable(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/token", http.StatusServiceUnavailable, map[string]any{"message": "upstream down"})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	_, err := g.SignInWithPassword(context.Background(), "a@example.com", "secret")
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestGoTrue_OAuthRedirectAndExchange(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("POST /auth/v1/token", http.StatusOK, sessionPayload("tok-oauth", clock.Now().Add(time.Hour)))
	g := newTestGoTrue(t, srv, &memStore{}, clock)
	ctx := context.Background()

	_, err := g.ExchangeCode(ctx, "code")
	assert.ErrorIs(t, err, models.ErrBadRequest, "no redirect pending")

	_, err = g.OAuthRedirectURL(ctx, "myspace", "http://127.0.0.1/cb")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	link, err := g.OAuthRedirectURL(ctx, models.OAuthGoogle, "http://127.0.0.1:8765/auth/callback")
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	assert.Equal(t, "google", u.Query().Get("provider"))
	assert.Equal(t, "http://127.0.0.1:8765/auth/callback", u.Query().Get("redirect_to"))
	assert.NotEmpty(t, u.Query().Get("code_challenge"))

	sess, err := g.ExchangeCode(ctx, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "tok-oauth", sess.AccessToken)

	req := fake.last()
	assert.Equal(t, "pkce", req.query.Get("grant_type"))
	assert.Equal(t, "auth-code", req.body["auth_code"])
	assert.NotEmpty(t, req.body["code_verifier"])
}

func TestGoTrue_GetSessionRefreshesExpired(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("POST /auth/v1/token", http.StatusOK, sessionPayload("tok-2", clock.Now().Add(time.Hour)))
	store := &memStore{session: &models.Session{
		AccessToken:  "tok-1",
		RefreshToken: "refresh-tok-1",
		ExpiresAt:    clock.Now().Add(-time.Minute),
	}}
	g := newTestGoTrue(t, srv, store, clock)

	sess, err := g.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "tok-2", sess.AccessToken)

	req := fake.last()
	assert.Equal(t, "refresh_token", req.query.Get("grant_type"))
	assert.Equal(t, "refresh-tok-1", req.body["refresh_token"])
}

func TestGoTrue_GetSessionRevokedRefreshToken(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("POST /auth/v1/token", http.StatusBadRequest, map[string]any{
		"code": 400, "error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token: Refresh Token Not Found",
	})
	store := &memStore{session: &models.Session{
		AccessToken:  "tok-1",
		RefreshToken: "gone",
		ExpiresAt:    clock.Now().Add(-time.Minute),
	}}
	g := newTestGoTrue(t, srv, store, clock)

	sess, err := g.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, store.session)
}

func TestGoTrue_SignOut(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("POST /auth/v1/logout", http.StatusNoContent, nil)
	store := &memStore{session: &models.Session{AccessToken: "tok-1", ExpiresAt: clock.Now().Add(time.Hour)}}
	g := newTestGoTrue(t, srv, store, clock)
	ctx := context.Background()

	require.NoError(t, g.SignOut(ctx))
	assert.Equal(t, "Bearer tok-1", fake.last().auth)
	assert.Nil(t, store.session)

	count := len(fake.requests)
	require.NoError(t, g.SignOut(ctx))
	assert.Len(t, fake.requests, count, "signing out twice does not call the provider")
}

func TestGoTrue_SignOutFailureKeepsSession(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("POST /auth/v1/logout", http.StatusBadGateway, map[string]any{"message": "bad gateway"})
	store := &memStore{session: &models.Session{AccessToken: "tok-1", ExpiresAt: clock.Now().Add(time.Hour)}}
	g := newTestGoTrue(t, srv, store, clock)

	err := g.SignOut(context.Background())
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	sess, err := g.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "tok-1", sess.AccessToken)
}

func TestGoTrue_SignUp(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/signup", http.StatusOK, map[string]any{
		"id":            newUserID,
		"email":         "new@example.com",
		"created_at":    "2026-01-01T00:00:00Z",
		"user_metadata": map[string]any{"name": "Ravi", "country": "India"},
		"identities":    []any{map[string]any{"id": "x"}},
	})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	identity, err := g.SignUp(context.Background(), SignUpRequest{
		Email:    "new@example.com",
		Password: "SecureP@ss123",
		Profile:  models.Profile{Name: "Ravi", Country: "India"},
	})
	require.NoError(t, err)
	assert.Equal(t, newUserID, identity.ID)
	assert.False(t, identity.EmailConfirmed)
	assert.Equal(t, "Ravi", identity.Profile.Name)

	data, ok := fake.last().body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "India", data["country"])
}

func TestGoTrue_SignUpExistingAddress(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/signup", http.StatusOK, map[string]any{
		"id":         newUserID,
		"email":      "taken@example.com",
		"identities": []any{},
	})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	_, err := g.SignUp(context.Background(), SignUpRequest{Email: "taken@example.com", Password: "SecureP@ss123"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestGoTrue_SignUpPasswordless(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/otp", http.StatusOK, map[string]any{})
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	identity, err := g.SignUp(context.Background(), SignUpRequest{Email: "new@example.com", Profile: testProfile})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", identity.Email)
	assert.Equal(t, true, fake.last().body["create_user"])
}

func TestGoTrue_CancelledContext(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	fake.on("POST /auth/v1/token", http.StatusOK, sessionPayload("tok-1", time.Now().Add(time.Hour)))
	g := newTestGoTrue(t, srv, &memStore{}, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.SignInWithPassword(ctx, "a@example.com", "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.requests)
}

func TestGoTrue_ReloadUser(t *testing.T) {
	fake, srv := newFakeGoTrue(t)
	clock := newFakeClock()
	fake.on("GET /auth/v1/user", http.StatusOK, map[string]any{
		"id":            testUserID,
		"email":         "a@example.com",
		"user_metadata": map[string]any{"name": "Asha Rao"},
	})
	store := &memStore{session: &models.Session{AccessToken: "tok-1", ExpiresAt: clock.Now().Add(time.Hour)}}
	g := newTestGoTrue(t, srv, store, clock)

	events, cancel := g.Subscribe()
	defer cancel()

	sess, err := g.ReloadUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", sess.User.Profile.Name)
	assert.Equal(t, "Bearer tok-1", fake.last().auth)
	assert.Equal(t, models.SessionUserUpdated, receive(t, events).Type)
}
