package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// rateLimitRepository implements RateLimitRepository on a persisted
// fixed-window counter so horizontally scaled instances share state and
// restarts do not reset budgets.
type rateLimitRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	// now supplies the clock; overridable in tests.
	now func() time.Time
}

// NewRateLimitRepository creates a new PostgreSQL-backed rate limiter store.
func NewRateLimitRepository(pool *pgxpool.Pool, logger zerolog.Logger) RateLimitRepository {
	return &rateLimitRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "rate_limit").Logger(),
	}
}

// Allow increments the (key, endpoint) counter and reports whether the
// request fits the budget. The window restarts when the stored one has
// expired; the upsert makes a single round trip.
func (r *rateLimitRepository) Allow(ctx context.Context, key, endpoint string, window time.Duration, budget int) (bool, int, error) {
	clock := time.Now
	if r.now != nil {
		clock = r.now
	}
	nowTime := clock()

	query := `
		INSERT INTO rate_limits (key, endpoint, window_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (key, endpoint) DO UPDATE
		SET count        = CASE WHEN rate_limits.window_start <= $4 THEN 1 ELSE rate_limits.count + 1 END,
		    window_start = CASE WHEN rate_limits.window_start <= $4 THEN $3 ELSE rate_limits.window_start END
		RETURNING window_start, count
	`

	var windowStart time.Time
	var count int
	err := r.pool.QueryRow(ctx, query, key, endpoint, nowTime, nowTime.Add(-window)).
		Scan(&windowStart, &count)
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Str("endpoint", endpoint).Msg("failed to update rate limit counter")
		return false, 0, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	if count <= budget {
		return true, 0, nil
	}

	retryAfter := int(math.Ceil(windowStart.Add(window).Sub(nowTime).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	r.logger.Warn().
		Str("key", key).
		Str("endpoint", endpoint).
		Int("count", count).
		Int("budget", budget).
		Msg("rate limit exceeded")
	return false, retryAfter, nil
}
