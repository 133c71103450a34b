package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/models"
)

// SessionRefresher periodically renews the current session shortly before
// its access token expires. The provider publishes TOKEN_REFRESHED on
// success and SIGNED_OUT when the refresh token is rejected.
type SessionRefresher struct {
	refresher identity.Refresher
	current   func() *models.Session
	logger    *slog.Logger
	interval  time.Duration
	margin    time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewSessionRefresher creates a refresher. current reports the session the
// client holds right now, or nil when signed out.
func NewSessionRefresher(
	refresher identity.Refresher,
	current func() *models.Session,
	logger *slog.Logger,
	interval time.Duration,
	margin time.Duration,
) *SessionRefresher {
	return &SessionRefresher{
		refresher: refresher,
		current:   current,
		logger:    logger,
		interval:  interval,
		margin:    margin,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is done.
func (sr *SessionRefresher) Start(ctx context.Context) {
	ticker := time.NewTicker(sr.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sr.runRefresh(ctx)

	for {
		select {
		case <-ticker.C:
			sr.runRefresh(ctx)
		case <-sr.stopCh:
			sr.logger.Info("session refresher stopped")
			return
		case <-ctx.Done():
			sr.logger.Info("session refresher context cancelled")
			return
		}
	}
}

// due reports whether s expires within the refresh margin.
func (sr *SessionRefresher) due(s *models.Session) bool {
	return s != nil && !sr.now().Add(sr.margin).Before(s.ExpiresAt)
}

func (sr *SessionRefresher) runRefresh(ctx context.Context) {
	s := sr.current()
	if !sr.due(s) {
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	next, err := sr.refresher.Refresh(refreshCtx)
	switch {
	case err == nil:
		sr.logger.Info("session refreshed",
			slog.String("user_id", next.User.ID),
			slog.Time("expires_at", next.ExpiresAt))
	case errors.Is(err, models.ErrUnauthorized):
		sr.logger.Info("session expired, signed out", slog.String("user_id", s.User.ID))
	case errors.Is(err, context.Canceled):
	default:
		// Transient; the next tick retries.
		sr.logger.Warn("failed to refresh session", slog.Any("error", err))
	}
}

// Stop signals the refresher to stop. It is safe to call more than once.
func (sr *SessionRefresher) Stop() {
	sr.stopOnce.Do(func() { close(sr.stopCh) })
}
