package repository

import (
	"context"
	"errors"
	"fmt"

	"tradedesk/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// userRepository implements UserRepository using PostgreSQL.
type userRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool *pgxpool.Pool, logger zerolog.Logger) UserRepository {
	return &userRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "user").Logger(),
	}
}

// GetByID retrieves a user, or nil when absent.
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `
		SELECT id, name, phone, email, company, inn, rating
		FROM users
		WHERE id = $1
	`

	var u model.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Phone, &u.Email, &u.Company, &u.INN, &u.Rating,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to query user")
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// ApplyRatingPenalty multiplies the user's rating by factor inside the
// caller's transaction.
func (r *userRepository) ApplyRatingPenalty(ctx context.Context, tx pgx.Tx, userID uuid.UUID, factor float64) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET rating = rating * $2 WHERE id = $1`, userID, factor)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to apply rating penalty")
		return fmt.Errorf("failed to apply rating penalty: %w", err)
	}

	// A vanished user row is not an error: the order's snapshots are
	// the durable record and the penalty has nothing to land on.
	if tag.RowsAffected() > 0 {
		r.logger.Debug().
			Str("user_id", userID.String()).
			Float64("factor", factor).
			Msg("rating penalty applied")
	}
	return nil
}
