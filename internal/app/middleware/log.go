package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"brandotp/internal/app/logger"
)

// Log attaches the logger to the request context and writes one access-log
// line per request.
func Log(l logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.NewHandler(l.Logger)

		access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request")
		})

		return h(access(next))
	}
}
