package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger creates a middleware that logs each request once it has
// been served, with the time it took. The response is not wrapped for status
// capture: the websocket upgrade hijacks the connection, and a wrapper would
// hide the Hijacker interface from it.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
			}
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.Info("Request served",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
