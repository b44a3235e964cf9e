package middleware

import (
	"bytes"
	"errors"
	"net/http"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/handler"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/storage"
)

const idempotencyHeader = "Idempotency-Key"

var errInternal = errors.New("internal server error")

// Idempotency replays the stored response for a repeated Idempotency-Key
// from the same user, so retried pay/cancel calls do not debit or refund
// twice. The key is claimed before the handler runs: a concurrent duplicate
// gets a 409 instead of a second execution, and a 5xx outcome releases the
// claim so the client can retry with the same key. Requests without the
// header pass through. Must be mounted after Auth.
func Idempotency(keys storage.IdempotencyRepository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			log := logger.Get(r.Context(), "Middleware.Idempotency")

			u, err := handler.ReadContextUser(r.Context())
			if err != nil {
				handler.WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			res, err := keys.Claim(r.Context(), key, u.ID)
			if err != nil {
				if errors.Is(err, apperr.ErrConflict) {
					log.Debug().Str("key", key).Msg("Duplicate request in flight")
					handler.WriteError(w, apperr.ErrConflict, http.StatusConflict)
					return
				}
				log.Error().Err(err).Msg("Key claim failed")
				handler.WriteError(w, errInternal, http.StatusInternalServerError)
				return
			}
			if res != nil {
				log.Debug().Str("key", key).Msg("Replaying stored response")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(res.Status)
				_, _ = w.Write(res.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// only definitive outcomes are worth replaying; a 5xx gives
			// the key back for a retry
			if rec.status < http.StatusInternalServerError {
				if err := keys.Save(r.Context(), key, u.ID, rec.status, rec.body.Bytes()); err != nil {
					log.Error().Err(err).Str("key", key).Msg("Key save failed")
				}
				return
			}
			if err := keys.Release(r.Context(), key, u.ID); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Key release failed")
			}
		})
	}
}

// responseRecorder captures the response while passing it through.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
