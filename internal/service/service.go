package service

import (
	"context"

	"tradedesk/internal/model"

	"github.com/google/uuid"
)

// OrderService covers the order store operations outside the state
// machine: creation, reads and hard deletion.
type OrderService interface {
	// Create inserts a response to an artifact on behalf of principal.
	Create(ctx context.Context, principal uuid.UUID, req *model.CreateOrderRequest) (*model.CreateOrderResponse, error)

	// List returns the principal's orders, newest first.
	List(ctx context.Context, principal uuid.UUID, filter model.ListFilter) ([]model.OrderView, error)

	// Get returns a single order resolved with the principal's role view.
	Get(ctx context.Context, principal, id uuid.UUID) (*model.OrderView, error)

	// CheckResponse reports the principal's active response to the
	// artifact, or nil when none exists.
	CheckResponse(ctx context.Context, principal, artifactID uuid.UUID) (*model.Order, error)

	// Delete hard-deletes an order. Permitted only to a party and only
	// while the order is in new or negotiating.
	Delete(ctx context.Context, principal, id uuid.UUID) error
}

// NegotiationService is the state machine behind PUT /orders.
type NegotiationService interface {
	// Apply validates and persists the transition described by patch,
	// enforcing role authorization, inventory effects and the sibling
	// rejection rule in a single transaction.
	Apply(ctx context.Context, principal, orderID uuid.UUID, patch *model.OrderPatch) (*model.Order, error)
}

// MessageService is the per-order conversation log.
type MessageService interface {
	Post(ctx context.Context, principal uuid.UUID, req *model.PostMessageRequest) (*model.PostMessageResponse, error)

	// ListByOrder returns the conversation ascending and marks the
	// counterparty's messages read.
	ListByOrder(ctx context.Context, principal, orderID uuid.UUID) ([]model.OrderMessage, error)

	// ListByArtifact returns the owner's inbox across all orders under
	// the artifact.
	ListByArtifact(ctx context.Context, principal, artifactID uuid.UUID) ([]model.OrderMessage, error)

	// Delete removes the principal's own message and its stored files.
	Delete(ctx context.Context, principal, messageID uuid.UUID) error
}
