package routes

import (
	"log/slog"

	"github.com/cardswap/cardswap/internal/handlers"
	"github.com/cardswap/cardswap/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RegisterRoutes mounts the callback listener's routes and middleware.
func RegisterRoutes(router chi.Router, callbackHandler *handlers.CallbackHandler, rateLimit middleware.RateLimitConfig, logger *slog.Logger) {
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.LoopbackOnly(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)

	router.Get("/health", callbackHandler.Health)
	router.With(middleware.RateLimitAll(rateLimit)).Get("/auth/callback", callbackHandler.Callback)
}
