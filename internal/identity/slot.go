package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cardswap/cardswap/internal/models"
)

// slot holds the current session for an adapter. Every change is persisted
// to the SessionStore and then fanned out to subscribers in the order the
// changes were made.
type slot struct {
	mu       sync.Mutex
	current  *models.Session
	restored bool
	store    SessionStore
	subs     map[uint64]*subscriber
	nextSub  uint64
	now      func() time.Time
	logger   *slog.Logger
}

func newSlot(store SessionStore, now func() time.Time, logger *slog.Logger) *slot {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &slot{
		store:  store,
		subs:   make(map[uint64]*subscriber),
		now:    now,
		logger: logger,
	}
}

// get returns a copy of the current session, or nil.
func (s *slot) get() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.current)
}

// restore loads the persisted session once. Later calls return what is in
// memory.
func (s *slot) restore(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restored || s.store == nil {
		s.restored = true
		return cloneSession(s.current), nil
	}

	sess, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.restored = true
	if s.current == nil {
		s.current = sess
	}
	return cloneSession(s.current), nil
}

// set replaces the current session and publishes typ.
func (s *slot) set(ctx context.Context, typ models.SessionEventType, sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = cloneSession(sess)
	s.restored = true
	if s.store != nil {
		if err := s.store.Save(ctx, s.current); err != nil {
			s.logger.Warn("failed to persist session", "error", err)
		}
	}
	s.publishLocked(models.SessionEvent{Type: typ, Session: cloneSession(sess), At: s.now()})
}

// clear drops the current session and publishes SIGNED_OUT. It reports
// whether there was a session to drop.
func (s *slot) clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := s.current != nil
	s.current = nil
	s.restored = true
	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear persisted session", "error", err)
		}
	}
	if had {
		s.publishLocked(models.SessionEvent{Type: models.SessionSignedOut, At: s.now()})
	}
	return had
}

func (s *slot) publishLocked(ev models.SessionEvent) {
	for _, sub := range s.subs {
		sub.push(ev)
	}
}

func (s *slot) subscribe() (<-chan models.SessionEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := newSubscriber()
	s.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			sub.stop()
		})
	}
	return sub.out, cancel
}

// subscriber queues events without bound so a slow reader never blocks the
// adapter, and delivers them in order on out.
type subscriber struct {
	mu    sync.Mutex
	queue []models.SessionEvent
	wake  chan struct{}
	done  chan struct{}
	out   chan models.SessionEvent
}

func newSubscriber() *subscriber {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan models.SessionEvent),
	}
	go sub.pump()
	return sub
}

func (sub *subscriber) push(ev models.SessionEvent) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) stop() {
	close(sub.done)
}

func (sub *subscriber) pump() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.done:
				return
			}
		}
		ev := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- ev:
		case <-sub.done:
			return
		}
	}
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
