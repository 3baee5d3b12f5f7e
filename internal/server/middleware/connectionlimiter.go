package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/Srivijai-S/server-chat/pkg/config"
)

// NewConnectionLimiter caps concurrent WebSocket sessions per client IP. The
// wrapped handler blocks for the lifetime of the connection, so the count is
// held until the connection terminates. A zero limit disables the cap.
func NewConnectionLimiter(logger *slog.Logger, cfg config.ConnectionLimitConfig) Middleware {
	var mu sync.Mutex
	counts := make(map[string]int)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerIP <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			mu.Lock()
			if counts[reqMeta.IP] >= cfg.MaxPerIP {
				count := counts[reqMeta.IP]
				mu.Unlock()
				logger.Warn("Connection limit reached for IP", slog.String("ip", reqMeta.IP), slog.Int("count", count))
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
				return
			}
			counts[reqMeta.IP]++
			mu.Unlock()

			defer func() {
				mu.Lock()
				counts[reqMeta.IP]--
				if counts[reqMeta.IP] <= 0 {
					delete(counts, reqMeta.IP)
				}
				mu.Unlock()
			}()

			next.ServeHTTP(w, r)
		})
	}
}
