package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockProvider implements identity.Provider for testing
type MockProvider struct {
	SendLoginCodeFunc      func(ctx context.Context, email string) error
	VerifyLoginCodeFunc    func(ctx context.Context, email, code string) (*models.Session, error)
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*models.Session, error)
	OAuthRedirectURLFunc   func(ctx context.Context, provider, redirectTo string) (string, error)
	SignOutFunc            func(ctx context.Context) error
	GetSessionFunc         func(ctx context.Context) (*models.Session, error)
	SignUpFunc             func(ctx context.Context, req identity.SignUpRequest) (*models.Identity, error)

	mu     sync.Mutex
	events chan models.SessionEvent
}

func (m *MockProvider) SendLoginCode(ctx context.Context, email string) error {
	if m.SendLoginCodeFunc != nil {
		return m.SendLoginCodeFunc(ctx, email)
	}
	return nil
}

func (m *MockProvider) VerifyLoginCode(ctx context.Context, email, code string) (*models.Session, error) {
	if m.VerifyLoginCodeFunc != nil {
		return m.VerifyLoginCodeFunc(ctx, email, code)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	if m.SignInWithPasswordFunc != nil {
		return m.SignInWithPasswordFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockProvider) OAuthRedirectURL(ctx context.Context, provider, redirectTo string) (string, error) {
	if m.OAuthRedirectURLFunc != nil {
		return m.OAuthRedirectURLFunc(ctx, provider, redirectTo)
	}
	return "https://auth.example.com/authorize?provider=" + provider, nil
}

func (m *MockProvider) SignOut(ctx context.Context) error {
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	return nil
}

func (m *MockProvider) GetSession(ctx context.Context) (*models.Session, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx)
	}
	return nil, nil
}

func (m *MockProvider) SignUp(ctx context.Context, req identity.SignUpRequest) (*models.Identity, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, req)
	}
	return &models.Identity{ID: "user-1", Email: req.Email, Profile: req.Profile}, nil
}

func (m *MockProvider) Subscribe() (<-chan models.SessionEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(chan models.SessionEvent, 16)
	}
	return m.events, func() {}
}

// Push emits a session change as the provider would.
func (m *MockProvider) Push(ev models.SessionEvent) {
	m.mu.Lock()
	ch := m.events
	m.mu.Unlock()
	ch <- ev
}

// MockProfileStore implements ProfileStore for testing
type MockProfileStore struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.ProfileRecord, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.ProfileRecord, error)
	CreateFunc     func(ctx context.Context, rec *models.ProfileRecord) (*models.ProfileRecord, error)

	mu      sync.Mutex
	created []models.ProfileRecord
}

func (m *MockProfileStore) GetByID(ctx context.Context, id string) (*models.ProfileRecord, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileStore) GetByEmail(ctx context.Context, email string) (*models.ProfileRecord, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockProfileStore) Create(ctx context.Context, rec *models.ProfileRecord) (*models.ProfileRecord, error) {
	m.mu.Lock()
	m.created = append(m.created, *rec)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rec)
	}
	return rec, nil
}

func (m *MockProfileStore) Created() []models.ProfileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ProfileRecord(nil), m.created...)
}

// codeMailer keeps the last code sent to each address.
type codeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	links map[string]string
}

func (c *codeMailer) SendLoginCode(_ context.Context, email, code, _ string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[email] = code
	return nil
}

func (c *codeMailer) SendConfirmation(_ context.Context, email, link string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.links == nil {
		c.links = make(map[string]string)
	}
	c.links[email] = link
	return nil
}

func (c *codeMailer) code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

func newMemoryProvider(t *testing.T) (*identity.Memory, *codeMailer) {
	t.Helper()
	mailer := &codeMailer{}
	p, err := identity.NewMemory(identity.MemoryConfig{
		Tokens:       auth.NewTokenManager("test-secret-key-at-least-32-chars", 15*time.Minute),
		Mailer:       mailer,
		PasswordCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	return p, mailer
}

func startManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager(cfg)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Close)
	return m
}

func testSession(id string) *models.Session {
	return &models.Session{
		User:         models.Identity{ID: id, Email: id + "@example.com", EmailConfirmed: true},
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

var validProfile = models.Profile{Name: "Asha", Phone: "9876543210", Country: "India", City: "Mumbai"}
