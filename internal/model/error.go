package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error           string     `json:"error"`
	RetryAfter      int        `json:"retry_after,omitempty"`
	Available       *int       `json:"available,omitempty"`
	Requested       *int       `json:"requested,omitempty"`
	ExistingOrderID *uuid.UUID `json:"existingOrderId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeValidation            = "VALIDATION"
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	ErrCodeDuplicateResponse     = "DUPLICATE_RESPONSE"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeUpstream              = "UPSTREAM"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// DomainError is a business-rule violation surfaced to the caller.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Common domain errors
var (
	ErrUnauthenticated  = NewDomainError(ErrCodeUnauthenticated, "authentication required")
	ErrArtifactNotFound = NewDomainError(ErrCodeNotFound, "offer or request not found")
	ErrOrderNotFound    = NewDomainError(ErrCodeNotFound, "order not found")
	ErrMessageNotFound  = NewDomainError(ErrCodeNotFound, "message not found")
	ErrSelfPurchase     = NewDomainError(ErrCodeForbidden, "cannot buy from yourself")
	ErrNotParty         = NewDomainError(ErrCodeForbidden, "user is not a party to this order")
	ErrBuyerOnly        = NewDomainError(ErrCodeForbidden, "only the buyer may perform this action")
	ErrSellerOnly       = NewDomainError(ErrCodeForbidden, "only the seller may perform this action")
	ErrCompleteByBuyer  = NewDomainError(ErrCodeForbidden, "only the buyer may complete the order")
	ErrSenderOnly       = NewDomainError(ErrCodeForbidden, "only the sender may delete a message")
	ErrNoCounter        = NewDomainError(ErrCodeConflict, "no counter-offer is standing")
	ErrOwnCounter       = NewDomainError(ErrCodeConflict, "cannot accept your own counter-offer")
	ErrCancelAccepted   = NewDomainError(ErrCodeConflict, "an accepted order cannot be cancelled")
	ErrEmptyMessage     = NewDomainError(ErrCodeValidation, "message must contain text or a file")
	ErrInvalidQuantity  = NewDomainError(ErrCodeValidation, "quantity must be greater than zero")
	ErrInvalidPrice     = NewDomainError(ErrCodeValidation, "price must be greater than zero")
)

// TerminalStateError rejects a transition attempted on an order already
// in a terminal state, carrying the current status for the client.
type TerminalStateError struct {
	Status OrderStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("order is already %s", e.Status)
}

// InvalidTransitionError rejects an edge the state machine does not allow.
type InvalidTransitionError struct {
	From, To OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// InsufficientInventoryError rejects an acceptance that would oversell
// the offer. Available may be negative when prior reservations already
// exceed the stock.
type InsufficientInventoryError struct {
	Available int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: available %d, requested %d", e.Available, e.Requested)
}

// DuplicateResponseError rejects a second active response to the same
// artifact by the same buyer.
type DuplicateResponseError struct {
	ExistingOrderID uuid.UUID
}

func (e *DuplicateResponseError) Error() string {
	return fmt.Sprintf("an active response already exists: %s", e.ExistingOrderID)
}

// RateLimitedError carries the retry hint for a throttled principal.
type RateLimitedError struct {
	RetryAfter int // seconds
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfter)
}
