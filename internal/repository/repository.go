package repository

import (
	"context"
	"time"

	"tradedesk/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ArtifactRepository resolves listings and keeps the offer inventory
// triple. The ledger operations run inside the caller's transaction so
// an inventory mutation can never outlive the state transition that
// triggered it.
type ArtifactRepository interface {
	// Resolve looks the id up as an offer first, then as a request.
	Resolve(ctx context.Context, id uuid.UUID) (*model.Artifact, error)

	// GetOfferForUpdate loads an offer row under an exclusive row lock.
	GetOfferForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Artifact, error)

	// LockRequest takes an exclusive lock on a request row. Serializes
	// competing acceptances so sibling rejection sees a stable set.
	LockRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// Reserve adds q to the offer's reserved quantity.
	Reserve(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error

	// Commit moves q from reserved to sold, flooring reserved at zero.
	Commit(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error

	// Release returns up to q units from reserved to free stock;
	// idempotent on over-release.
	Release(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error
}

// OrderRepository persists orders and their role-aware views.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Create inserts a new order within the provided transaction.
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// GetByID retrieves an order, or nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByIDForUpdate retrieves an order under an exclusive row lock.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// List returns the principal's orders, newest first, with unread
	// message counts and offer availability resolved per row.
	List(ctx context.Context, userID uuid.UUID, filter model.ListFilter) ([]model.OrderView, error)

	// GetView returns the single-order variant of List.
	GetView(ctx context.Context, id, userID uuid.UUID) (*model.OrderView, error)

	// FindActiveByArtifactAndBuyer returns the buyer's non-cancelled
	// response to the artifact, or nil.
	FindActiveByArtifactAndBuyer(ctx context.Context, artifactID, buyerID uuid.UUID) (*model.Order, error)

	// Update persists every mutable column of the order.
	Update(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// RejectSiblings moves every other non-terminal order on the same
	// artifact to rejected and returns the displaced orders.
	RejectSiblings(ctx context.Context, tx pgx.Tx, offerID, acceptedID uuid.UUID, reason string) ([]model.Order, error)

	// Delete hard-deletes the order; messages cascade.
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// MessageRepository is the append-only per-order conversation log.
type MessageRepository interface {
	Create(ctx context.Context, msg *model.OrderMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.OrderMessage, error)

	// ListByOrder returns messages ascending by created_at, id tiebreak.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderMessage, error)

	// MarkRead flags every message on the order not sent by reader.
	MarkRead(ctx context.Context, orderID, readerID uuid.UUID) error

	// ListByArtifact returns the descending feed across all orders
	// referencing the artifact.
	ListByArtifact(ctx context.Context, artifactID uuid.UUID) ([]model.OrderMessage, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository reads the party snapshots and applies rating penalties.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// ApplyRatingPenalty multiplies the user's rating by factor.
	ApplyRatingPenalty(ctx context.Context, tx pgx.Tx, userID uuid.UUID, factor float64) error
}

// RateLimitRepository is the persisted sliding-window counter shared by
// all instances.
type RateLimitRepository interface {
	// Allow increments the (key, endpoint) counter and reports whether
	// the request fits the budget. When denied, retryAfter is the
	// number of seconds until the window resets.
	Allow(ctx context.Context, key, endpoint string, window time.Duration, budget int) (allowed bool, retryAfter int, err error)
}

// CleanupRepository backs the orphan sweeper.
type CleanupRepository interface {
	// OrphanedOrders returns orders whose artifact row no longer exists.
	OrphanedOrders(ctx context.Context, limit int) ([]model.Order, error)

	// ArchiveTerminal flags terminal orders older than cutoff and
	// returns how many rows were touched.
	ArchiveTerminal(ctx context.Context, cutoff time.Time) (int64, error)

	// PruneRateLimits drops rate-limit windows that ended before cutoff.
	PruneRateLimits(ctx context.Context, cutoff time.Time) (int64, error)
}
