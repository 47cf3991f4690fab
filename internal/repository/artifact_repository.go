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

// artifactRepository implements ArtifactRepository using PostgreSQL.
type artifactRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewArtifactRepository creates a new PostgreSQL-backed artifact repository.
func NewArtifactRepository(pool *pgxpool.Pool, logger zerolog.Logger) ArtifactRepository {
	return &artifactRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "artifact").Logger(),
	}
}

// Resolve looks the id up as an offer first, then as a request. The
// discriminator is which table the row lives in; callers persist the
// result so the probe happens once per order lifetime.
func (r *artifactRepository) Resolve(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	offerQuery := `
		SELECT id, owner_id, title, unit, price_per_unit,
		       quantity, sold_quantity, reserved_quantity, status
		FROM offers
		WHERE id = $1
	`

	var a model.Artifact
	err := r.pool.QueryRow(ctx, offerQuery, id).Scan(
		&a.ID, &a.OwnerID, &a.Title, &a.Unit, &a.PricePerUnit,
		&a.Quantity, &a.SoldQuantity, &a.ReservedQuantity, &a.Status,
	)
	if err == nil {
		a.Kind = model.ArtifactOffer
		return &a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error().Err(err).Str("artifact_id", id.String()).Msg("failed to query offer")
		return nil, fmt.Errorf("failed to query offer: %w", err)
	}

	// Requests carry no stock; the inventory triple stays zero.
	requestQuery := `
		SELECT id, owner_id, title, unit, price_per_unit, quantity, status
		FROM requests
		WHERE id = $1
	`

	err = r.pool.QueryRow(ctx, requestQuery, id).Scan(
		&a.ID, &a.OwnerID, &a.Title, &a.Unit, &a.PricePerUnit,
		&a.Quantity, &a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("artifact_id", id.String()).Msg("failed to query request")
		return nil, fmt.Errorf("failed to query request: %w", err)
	}

	a.Kind = model.ArtifactRequest
	return &a, nil
}

// GetOfferForUpdate loads an offer row under FOR UPDATE. Callers must
// already hold the order-row lock; taking locks in that fixed order
// (order before offer) keeps the acceptance path deadlock-free.
func (r *artifactRepository) GetOfferForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Artifact, error) {
	query := `
		SELECT id, owner_id, title, unit, price_per_unit,
		       quantity, sold_quantity, reserved_quantity, status
		FROM offers
		WHERE id = $1
		FOR UPDATE
	`

	var a model.Artifact
	err := tx.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.OwnerID, &a.Title, &a.Unit, &a.PricePerUnit,
		&a.Quantity, &a.SoldQuantity, &a.ReservedQuantity, &a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("offer_id", id.String()).Msg("failed to lock offer row")
		return nil, fmt.Errorf("failed to lock offer row: %w", err)
	}

	a.Kind = model.ArtifactOffer
	return &a, nil
}

// LockRequest takes an exclusive lock on a request row. Taken in the
// same position of the lock order as the offer lock: order row first.
func (r *artifactRepository) LockRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM requests WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrArtifactNotFound
		}
		r.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to lock request row")
		return fmt.Errorf("failed to lock request row: %w", err)
	}
	return nil
}

// Reserve adds q to reserved. Reservation at response creation is
// intentionally unconditional; free stock is only checked at acceptance.
func (r *artifactRepository) Reserve(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error {
	query := `
		UPDATE offers
		SET reserved_quantity = reserved_quantity + $2
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, offerID, q)
	if err != nil {
		r.logger.Error().Err(err).Str("offer_id", offerID.String()).Int("quantity", q).Msg("failed to reserve inventory")
		return fmt.Errorf("failed to reserve inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrArtifactNotFound
	}

	r.logger.Debug().Str("offer_id", offerID.String()).Int("quantity", q).Msg("inventory reserved")
	return nil
}

// Commit moves q from reserved to sold, flooring reserved at zero.
func (r *artifactRepository) Commit(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error {
	query := `
		UPDATE offers
		SET sold_quantity     = sold_quantity + $2,
		    reserved_quantity = GREATEST(reserved_quantity - $2, 0)
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, offerID, q)
	if err != nil {
		r.logger.Error().Err(err).Str("offer_id", offerID.String()).Int("quantity", q).Msg("failed to commit inventory")
		return fmt.Errorf("failed to commit inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrArtifactNotFound
	}

	r.logger.Debug().Str("offer_id", offerID.String()).Int("quantity", q).Msg("inventory committed")
	return nil
}

// Release returns up to q units from reserved to free stock.
func (r *artifactRepository) Release(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error {
	query := `
		UPDATE offers
		SET reserved_quantity = GREATEST(reserved_quantity - $2, 0)
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, offerID, q)
	if err != nil {
		r.logger.Error().Err(err).Str("offer_id", offerID.String()).Int("quantity", q).Msg("failed to release inventory")
		return fmt.Errorf("failed to release inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrArtifactNotFound
	}

	r.logger.Debug().Str("offer_id", offerID.String()).Int("quantity", q).Msg("inventory released")
	return nil
}
