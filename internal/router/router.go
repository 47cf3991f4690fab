package router

import (
	"net/http"

	"tradedesk/internal/config"
	"tradedesk/internal/handler"
	"tradedesk/internal/middleware"
	"tradedesk/internal/repository"

	"github.com/rs/zerolog"
)

// New creates the HTTP router with all routes and middleware configured.
func New(
	orderHandler *handler.OrderHandler,
	rateLimitRepo repository.RateLimitRepository,
	rateLimitCfg config.RateLimitConfig,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint, outside the limiter
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	// The whole order/message surface multiplexes on one path.
	mux.Handle("/orders", orderHandler)
	mux.Handle("/orders/", orderHandler)

	// Apply middleware in order: Recovery -> Logging -> CORS -> Principal -> RateLimit
	var h http.Handler = mux
	h = middleware.RateLimit(rateLimitRepo, rateLimitCfg, logger)(h)
	h = middleware.Principal(h)
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)

	return h
}
