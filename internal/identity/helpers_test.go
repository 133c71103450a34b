package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sentMail struct {
	email string
	code  string
	link  string
}

// captureMailer records every message instead of delivering it.
type captureMailer struct {
	mu            sync.Mutex
	codes         []sentMail
	confirmations []sentMail
	err           error
}

func (c *captureMailer) SendLoginCode(_ context.Context, email, code, link string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.codes = append(c.codes, sentMail{email: email, code: code, link: link})
	return nil
}

func (c *captureMailer) SendConfirmation(_ context.Context, email, link string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmations = append(c.confirmations, sentMail{email: email, link: link})
	return nil
}

func (c *captureMailer) lastCode(t *testing.T) sentMail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.codes, "no login code sent")
	return c.codes[len(c.codes)-1]
}

func (c *captureMailer) lastConfirmation(t *testing.T) sentMail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.confirmations, "no confirmation sent")
	return c.confirmations[len(c.confirmations)-1]
}

// memStore is a SessionStore kept in memory.
type memStore struct {
	mu      sync.Mutex
	session *models.Session
	saves   int
}

func (s *memStore) Load(context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.session), nil
}

func (s *memStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = cloneSession(sess)
	s.saves++
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemory(t *testing.T) (*Memory, *captureMailer, *fakeClock) {
	t.Helper()
	mailer := &captureMailer{}
	clock := newFakeClock()
	m, err := NewMemory(MemoryConfig{
		Tokens:         auth.NewTokenManager("test-secret-key-at-least-32-chars", 15*time.Minute),
		Mailer:         mailer,
		Store:          &memStore{},
		Now:            clock.Now,
		CallbackURL:    "http://127.0.0.1:8765/auth/callback",
		ResendCooldown: time.Minute,
		PasswordCost:   bcrypt.MinCost,
	})
	require.NoError(t, err)
	return m, mailer, clock
}

func receive(t *testing.T, ch <-chan models.SessionEvent) models.SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
	return models.SessionEvent{}
}
