// Package callback runs the loopback listener that OAuth and magic-link
// redirects land on while the CLI waits for them.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cardswap/cardswap/internal/handlers"
	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/middleware"
	"github.com/cardswap/cardswap/internal/routes"
	"github.com/go-chi/chi/v5"
)

// Config configures the listener.
type Config struct {
	Addr         string
	Exchanger    identity.CodeExchanger
	Confirmer    handlers.EmailConfirmer
	RateLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Logger       *slog.Logger
}

// Server is a short-lived HTTP listener bound to a loopback address.
type Server struct {
	handler *handlers.CallbackHandler
	server  *http.Server
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// New builds the listener without binding it.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := handlers.NewCallbackHandler(cfg.Exchanger, cfg.Confirmer, logger)
	router := chi.NewRouter()
	routes.RegisterRoutes(router, h, middleware.RateLimitConfig{RequestsPerMinute: cfg.RateLimit}, logger)

	return &Server{
		handler: h,
		logger:  logger,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the address and serves in the background. The address must
// be a loopback address.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("callback listener already started")
	}

	host, _, err := net.SplitHostPort(s.server.Addr)
	if err != nil {
		return fmt.Errorf("invalid callback address %q: %w", s.server.Addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("callback address %q is not a loopback address", s.server.Addr)
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info("callback listener started", slog.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback listener error", slog.Any("error", err))
		}
	}()
	return nil
}

// URL returns the callback URL of the bound listener.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.server.Addr
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	return "http://" + addr + "/auth/callback"
}

// Wait blocks until a redirect completes a sign-in or a confirmation, a
// redirect fails, or ctx is done.
func (s *Server) Wait(ctx context.Context) (handlers.CallbackResult, error) {
	select {
	case res := <-s.handler.Results():
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-ctx.Done():
		return handlers.CallbackResult{}, ctx.Err()
	}
}

// Shutdown stops the listener, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	started := s.listener != nil
	s.mu.Unlock()

	if !started {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("callback listener stopped")
	return nil
}
