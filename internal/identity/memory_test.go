package identity

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfile = models.Profile{Name: "Asha", Phone: "9876543210", Country: "India", City: "Mumbai"}

func queryParam(t *testing.T, link, key string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get(key)
}

func signUpConfirmed(t *testing.T, m *Memory, mailer *captureMailer, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := m.SignUp(ctx, SignUpRequest{Email: email, Password: password, Profile: testProfile})
	require.NoError(t, err)
	token := queryParam(t, mailer.lastConfirmation(t).link, "confirm")
	require.NoError(t, m.ConfirmEmail(ctx, token))
}

func TestMemory_SignUpCreatesUnconfirmedAccount(t *testing.T) {
	m, mailer, _ := newTestMemory(t)

	identity, err := m.SignUp(context.Background(), SignUpRequest{
		Email:   "Asha@Example.com",
		Profile: testProfile,
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", identity.Email)
	assert.False(t, identity.EmailConfirmed)
	assert.Equal(t, testProfile, identity.Profile)
	assert.Equal(t, "asha@example.com", mailer.lastConfirmation(t).email)

	sess, err := m.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess, "sign-up never starts a session")
}

func TestMemory_SignUpDuplicateEmail(t *testing.T) {
	m, _, _ := newTestMemory(t)
	ctx := context.Background()

	_, err := m.SignUp(ctx, SignUpRequest{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = m.SignUp(ctx, SignUpRequest{Email: "A@example.com"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMemory_SignUpRejectsWeakPassword(t *testing.T) {
	m, _, _ := newTestMemory(t)
	_, err := m.SignUp(context.Background(), SignUpRequest{Email: "a@example.com", Password: "password"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestMemory_LoginBeforeConfirmation(t *testing.T) {
	m, _, _ := newTestMemory(t)
	ctx := context.Background()

	_, err := m.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "SecureP@ss123"})
	require.NoError(t, err)

	err = m.SendLoginCode(ctx, "a@example.com")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)

	_, err = m.SignInWithPassword(ctx, "a@example.com", "SecureP@ss123")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestMemory_LoginCodeFlow(t *testing.T) {
	m, mailer, _ := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "")

	events, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.SendLoginCode(ctx, "a@example.com"))
	code := mailer.lastCode(t).code
	assert.Len(t, code, 6)

	sess, err := m.VerifyLoginCode(ctx, "a@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sess.User.Email)
	assert.True(t, sess.User.EmailConfirmed)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)

	ev := receive(t, events)
	assert.Equal(t, models.SessionSignedIn, ev.Type)
	assert.Equal(t, sess.AccessToken, ev.Session.AccessToken)

	_, err = m.VerifyLoginCode(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials, "codes are single use")
}

func TestMemory_LoginCodeUnknownAccount(t *testing.T) {
	m, _, _ := newTestMemory(t)
	err := m.SendLoginCode(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemory_LoginCodeResendCooldown(t *testing.T) {
	m, mailer, clock := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "")

	require.NoError(t, m.SendLoginCode(ctx, "a@example.com"))
	assert.ErrorIs(t, m.SendLoginCode(ctx, "a@example.com"), models.ErrRateLimited)

	clock.Advance(61 * time.Second)
	require.NoError(t, m.SendLoginCode(ctx, "a@example.com"))
	assert.Len(t, mailer.codes, 2)
}

func TestMemory_LoginCodeExpiresAndLocksOut(t *testing.T) {
	m, mailer, clock := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "")

	require.NoError(t, m.SendLoginCode(ctx, "a@example.com"))
	code := mailer.lastCode(t).code
	clock.Advance(11 * time.Minute)
	_, err := m.VerifyLoginCode(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	require.NoError(t, m.SendLoginCode(ctx, "a@example.com"))
	code = mailer.lastCode(t).code
	for i := 0; i < 5; i++ {
		_, err := m.VerifyLoginCode(ctx, "a@example.com", "000000x")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	_, err = m.VerifyLoginCode(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials, "challenge dropped after too many attempts")
}

func TestMemory_MagicLinkExchange(t *testing.T) {
	m, mailer, _ := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "")

	require.NoError(t, m.SendLoginCode(ctx, "a@example.com"))
	linkCode := queryParam(t, mailer.lastCode(t).link, "code")

	sess, err := m.ExchangeCode(ctx, linkCode)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sess.User.Email)

	_, err = m.ExchangeCode(ctx, linkCode)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestMemory_PasswordSignIn(t *testing.T) {
	m, mailer, _ := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "SecureP@ss123")

	_, err := m.SignInWithPassword(ctx, "a@example.com", "WrongP@ss123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = m.SignInWithPassword(ctx, "ghost@example.com", "SecureP@ss123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	sess, err := m.SignInWithPassword(ctx, "a@example.com", "SecureP@ss123")
	require.NoError(t, err)
	assert.Equal(t, "Asha", sess.User.Profile.Name)
}

func TestMemory_OAuthRedirect(t *testing.T) {
	m, _, _ := newTestMemory(t)
	ctx := context.Background()

	_, err := m.OAuthRedirectURL(ctx, "myspace", "http://127.0.0.1:8765/auth/callback")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	link, err := m.OAuthRedirectURL(ctx, models.OAuthGitHub, "http://127.0.0.1:8765/auth/callback")
	require.NoError(t, err)
	code := queryParam(t, link, "code")
	require.NotEmpty(t, code)

	sess, err := m.ExchangeCode(ctx, code)
	require.NoError(t, err)
	assert.True(t, sess.User.EmailConfirmed)
}

func TestMemory_RefreshRotatesTokens(t *testing.T) {
	m, mailer, clock := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "SecureP@ss123")

	first, err := m.SignInWithPassword(ctx, "a@example.com", "SecureP@ss123")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	got, err := m.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEqual(t, first.RefreshToken, got.RefreshToken)
	assert.True(t, got.ExpiresAt.After(clock.Now()))
}

func TestMemory_RefreshWithRevokedTokenSignsOut(t *testing.T) {
	m, mailer, _ := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "SecureP@ss123")

	_, err := m.SignInWithPassword(ctx, "a@example.com", "SecureP@ss123")
	require.NoError(t, err)

	m.mu.Lock()
	m.grants = make(map[string]refreshGrant)
	m.mu.Unlock()

	_, err = m.Refresh(ctx)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))
	sess, err := m.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestMemory_SignOutIsIdempotent(t *testing.T) {
	m, mailer, _ := newTestMemory(t)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "SecureP@ss123")

	require.NoError(t, m.SignOut(ctx), "no session yet")

	_, err := m.SignInWithPassword(ctx, "a@example.com", "SecureP@ss123")
	require.NoError(t, err)

	events, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.SignOut(ctx))
	require.NoError(t, m.SignOut(ctx))
	assert.Equal(t, models.SessionSignedOut, receive(t, events).Type)

	sess, err := m.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestMemory_FailedCredentialsArePadded(t *testing.T) {
	m, mailer, _ := newTestMemory(t)
	m.cfg.FailureDelay = auth.NewFailureDelay(60*time.Millisecond, 0)
	ctx := context.Background()
	signUpConfirmed(t, m, mailer, "a@example.com", "SecureP@ss123")

	start := time.Now()
	_, err := m.SignInWithPassword(ctx, "ghost@example.com", "SecureP@ss123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	start = time.Now()
	_, err = m.VerifyLoginCode(ctx, "a@example.com", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	// Unconfirmed accounts are reported without padding.
	_, err = m.SignUp(ctx, SignUpRequest{Email: "b@example.com", Password: "SecureP@ss123", Profile: testProfile})
	require.NoError(t, err)
	start = time.Now()
	_, err = m.SignInWithPassword(ctx, "b@example.com", "SecureP@ss123")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
	assert.Less(t, time.Since(start), 60*time.Millisecond)
}
