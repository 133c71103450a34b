package middleware

import (
	"log/slog"
	"net/http"

	pkghttp "github.com/cardswap/cardswap/pkg/http"
)

// LoopbackOnly rejects requests whose peer is not a loopback address.
// Forwarding headers are ignored.
func LoopbackOnly(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pkghttp.IsLoopbackPeer(r) {
				logger.Warn("rejected non-loopback callback request", slog.String("remote_addr", r.RemoteAddr))
				pkghttp.WriteForbidden(w, "Callback accepts local requests only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
