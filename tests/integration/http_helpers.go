package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/database"
	"github.com/cardswap/cardswap/internal/handlers"
	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/middleware"
	"github.com/cardswap/cardswap/internal/repositories"
	"github.com/cardswap/cardswap/internal/routes"
	"github.com/cardswap/cardswap/internal/session"
	"github.com/cardswap/cardswap/internal/sessionstore"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockMailer captures sent emails for test assertions
type MockMailer struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *MockMailer) record(to, subject, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: to, Subject: subject, Body: body})
}

// SendLoginCode records the email
func (m *MockMailer) SendLoginCode(ctx context.Context, email, code, link string, expiresAt time.Time) error {
	m.record(email, "Your CardSwap sign-in code", fmt.Sprintf("Code: %s Link: %s", code, link))
	return nil
}

// SendConfirmation records the email
func (m *MockMailer) SendConfirmation(ctx context.Context, email, link string, expiresAt time.Time) error {
	m.record(email, "Confirm your CardSwap account", "Link: "+link)
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockMailer) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	e := m.SentEmails[len(m.SentEmails)-1]
	return &e
}

// TestServer wires the offline provider, the session manager backed by real
// profile storage and the callback listener routes behind httptest.
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Mailer   *MockMailer
	Provider *identity.Memory
	Manager  *session.Manager
	Callback *handlers.CallbackHandler

	store *sessionstore.Store
}

// NewTestServer initializes a callback server with a real database and a
// captured mailbox. sessionPath is where the session store lives.
func NewTestServer(ctx context.Context, db *database.DB, sessionPath string) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := sessionstore.Open(ctx, sessionPath)
	if err != nil {
		return nil, err
	}

	mailer := &MockMailer{}
	provider, err := identity.NewMemory(identity.MemoryConfig{
		Tokens:       auth.NewTokenManager("test-secret-32-characters-long-for-testing", 15*time.Minute),
		Mailer:       mailer,
		Store:        store,
		Logger:       logger,
		PasswordCost: 4,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	manager := session.NewManager(session.Config{
		Provider: provider,
		Profiles: repositories.NewProfileRepository(db),
		Logger:   logger,
	})
	if err := manager.Start(ctx); err != nil {
		manager.Close()
		_ = store.Close()
		return nil, err
	}

	callbackHandler := handlers.NewCallbackHandler(provider, provider, logger)

	r := chi.NewRouter()
	routes.RegisterRoutes(r, callbackHandler, middleware.DefaultCallbackRateLimit(), logger)

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Mailer:   mailer,
		Provider: provider,
		Manager:  manager,
		Callback: callbackHandler,
		store:    store,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	ts.Manager.Close()
	_ = ts.store.Close()
}

// FollowLink replays the query of an emailed link against the callback route.
func (ts *TestServer) FollowLink(query string) (*http.Response, error) {
	return http.Get(ts.Server.URL + "/auth/callback?" + query)
}

// NextResult waits for the callback handler to publish an outcome.
func (ts *TestServer) NextResult(timeout time.Duration) (handlers.CallbackResult, error) {
	select {
	case res := <-ts.Callback.Results():
		return res, nil
	case <-time.After(timeout):
		return handlers.CallbackResult{}, fmt.Errorf("no callback result within %s", timeout)
	}
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
