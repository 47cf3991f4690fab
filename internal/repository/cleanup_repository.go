package repository

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// cleanupRepository implements CleanupRepository using PostgreSQL.
type cleanupRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCleanupRepository creates a new PostgreSQL-backed cleanup repository.
func NewCleanupRepository(pool *pgxpool.Pool, logger zerolog.Logger) CleanupRepository {
	return &cleanupRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "cleanup").Logger(),
	}
}

// OrphanedOrders returns orders whose artifact row no longer exists in
// either listing table.
func (r *cleanupRepository) OrphanedOrders(ctx context.Context, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE NOT EXISTS (SELECT 1 FROM offers   WHERE offers.id = orders.offer_id)
		  AND NOT EXISTS (SELECT 1 FROM requests WHERE requests.id = orders.offer_id)
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query orphaned orders")
		return nil, fmt.Errorf("failed to query orphaned orders: %w", err)
	}
	defer rows.Close()

	var orphans []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan orphaned order: %w", err)
		}
		orphans = append(orphans, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphaned orders: %w", err)
	}
	return orphans, nil
}

// ArchiveTerminal flags terminal orders whose last update is older than
// cutoff; archived rows drop out of list views but stay queryable by id.
func (r *cleanupRepository) ArchiveTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE orders
		SET archived = TRUE
		WHERE archived = FALSE
		  AND status IN ('completed', 'cancelled', 'rejected')
		  AND updated_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to archive terminal orders")
		return 0, fmt.Errorf("failed to archive terminal orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneRateLimits drops counters whose window ended before cutoff.
func (r *cleanupRepository) PruneRateLimits(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to prune rate limit counters")
		return 0, fmt.Errorf("failed to prune rate limit counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
