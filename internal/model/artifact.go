package model

import "github.com/google/uuid"

// ArtifactKind discriminates sell-side offers from buy-side requests.
// Inventory accounting applies to offers only; a request has no stock.
type ArtifactKind string

const (
	ArtifactOffer   ArtifactKind = "offer"
	ArtifactRequest ArtifactKind = "request"
)

// ArtifactStatus is the catalog lifecycle of a listing.
type ArtifactStatus string

const (
	ArtifactActive   ArtifactStatus = "active"
	ArtifactArchived ArtifactStatus = "archived"
	ArtifactDraft    ArtifactStatus = "draft"
	ArtifactDeleted  ArtifactStatus = "deleted"
)

// Artifact is a listing that orders respond to: an offer or a request.
// The kind is resolved once, when an order is created, and persisted on
// the order row so later transitions never have to probe both tables.
type Artifact struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	Kind             ArtifactKind   `json:"kind" db:"-"`
	OwnerID          uuid.UUID      `json:"ownerId" db:"owner_id"`
	Title            string         `json:"title" db:"title"`
	Unit             string         `json:"unit" db:"unit"`
	PricePerUnit     float64        `json:"pricePerUnit" db:"price_per_unit"`
	Quantity         int            `json:"quantity" db:"quantity"`
	SoldQuantity     int            `json:"soldQuantity" db:"sold_quantity"`
	ReservedQuantity int            `json:"reservedQuantity" db:"reserved_quantity"`
	Status           ArtifactStatus `json:"status" db:"status"`
}

// IsRequest reports whether the artifact is a buy-side request.
func (a *Artifact) IsRequest() bool {
	return a.Kind == ArtifactRequest
}

// FreeQuantity is the stock not yet sold or held by pending orders.
func (a *Artifact) FreeQuantity() int {
	return a.Quantity - a.SoldQuantity - a.ReservedQuantity
}
