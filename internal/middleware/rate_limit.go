package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/cardswap/cardswap/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultCallbackRateLimit allows a handful of redirects per minute, enough
// for retries from the browser but not for guessing codes.
func DefaultCallbackRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 30}
}

// RateLimitAll caps the total request rate regardless of client. The
// callback listener only serves loopback clients, so keying by IP would put
// every request in one bucket anyway.
func RateLimitAll(config RateLimitConfig) func(next http.Handler) http.Handler {
	limit := config.RequestsPerMinute
	if limit <= 0 {
		limit = DefaultCallbackRateLimit().RequestsPerMinute
	}
	return httprate.Limit(
		limit,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return "callback", nil }),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}
