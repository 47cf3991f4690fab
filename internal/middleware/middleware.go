package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

// principalKey carries the authenticated user id through the request context.
const principalKey contextKey = "principal"

// uploadThreshold splits message posts carrying inline file payloads
// into the stricter upload budget.
const uploadThreshold = 256 * 1024

// CORS adds permissive CORS headers. Preflight requests are answered
// with an empty 200.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id, X-Auth-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Principal extracts the user id set by the auth boundary from the
// X-User-Id header. Requests without a parseable id proceed
// unauthenticated; the services decide whether that is acceptable.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-User-Id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), principalKey, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal returns a context carrying the given user id.
func WithPrincipal(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, principalKey, id)
}

// PrincipalFromContext returns the authenticated user id, or uuid.Nil.
func PrincipalFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(principalKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// RateLimit throttles write-heavy endpoints with the persisted
// sliding-window counter. Reads and preflights pass through.
func RateLimit(repo repository.RateLimitRepository, cfg config.RateLimitConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint, budget := classify(r, cfg)
			if endpoint == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := limiterKey(r)
			allowed, retryAfter, err := repo.Allow(r.Context(), key, endpoint, cfg.Window, budget)
			if err != nil {
				// The limiter failing must not take the API down.
				logger.Error().Err(err).Str("endpoint", endpoint).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn().
					Str("key", key).
					Str("endpoint", endpoint).
					Int("retry_after", retryAfter).
					Msg("rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error":       "too many requests",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// classify labels the request for the limiter. An empty label exempts
// the request.
func classify(r *http.Request, cfg config.RateLimitConfig) (string, int) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return "", 0
	}

	q := r.URL.Query()
	switch {
	case q.Get("message") == "true":
		if r.ContentLength > uploadThreshold {
			return "messages_upload", cfg.UploadBudget
		}
		return "messages_post", cfg.WriteBudget
	case q.Get("messageId") != "":
		return "messages_delete", cfg.WriteBudget
	default:
		return "orders_write", cfg.WriteBudget
	}
}

// limiterKey is the principal id when authenticated, the source IP
// otherwise.
func limiterKey(r *http.Request) string {
	if id := PrincipalFromContext(r.Context()); id != uuid.Nil {
		return id.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Logging logs HTTP requests with timing information.
func Logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error().
						Interface("panic", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error": "internal server error"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
