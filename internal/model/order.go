package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusNew         OrderStatus = "new"
	StatusNegotiating OrderStatus = "negotiating"
	StatusAccepted    OrderStatus = "accepted"
	StatusRejected    OrderStatus = "rejected"
	StatusCancelled   OrderStatus = "cancelled"
	StatusCompleted   OrderStatus = "completed"
)

// allowedTransitions whitelists every legal status edge.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusNew: {
		StatusNegotiating: true,
		StatusAccepted:    true,
		StatusRejected:    true,
		StatusCancelled:   true,
	},
	StatusNegotiating: {
		StatusNegotiating: true,
		StatusAccepted:    true,
		StatusRejected:    true,
		StatusCancelled:   true,
	},
	StatusAccepted: {
		StatusCompleted: true,
	},
	StatusRejected:  {},
	StatusCancelled: {},
	StatusCompleted: {},
}

// CanTransition reports whether the edge from → to is legal.
func CanTransition(from, to OrderStatus) bool {
	return allowedTransitions[from][to]
}

// IsTerminal reports whether no transitions leave the status.
func IsTerminal(s OrderStatus) bool {
	return len(allowedTransitions[s]) == 0
}

// PartyRole identifies which side of an order a user is on.
type PartyRole string

const (
	RoleBuyer  PartyRole = "buyer"
	RoleSeller PartyRole = "seller"
)

// Other returns the counterparty role.
func (r PartyRole) Other() PartyRole {
	if r == RoleBuyer {
		return RoleSeller
	}
	return RoleBuyer
}

// Attachment is a stored file reference carried by orders and messages.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SiblingRejectionReason is stored on every request-side order displaced
// by the acceptance of a competing response.
const SiblingRejectionReason = "Автоматически отклонён — выбран другой исполнитель"

// Order is a response to an artifact and the vehicle of negotiation.
// Buyer and seller snapshots are denormalized at creation and never
// updated afterwards; they survive deletion of the user rows.
type Order struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrderNumber string    `json:"orderNumber" db:"order_number"`

	BuyerID      uuid.UUID `json:"buyerId" db:"buyer_id"`
	BuyerName    string    `json:"buyerName" db:"buyer_name"`
	BuyerPhone   string    `json:"buyerPhone" db:"buyer_phone"`
	BuyerEmail   string    `json:"buyerEmail" db:"buyer_email"`
	BuyerCompany string    `json:"buyerCompany" db:"buyer_company"`
	BuyerINN     string    `json:"buyerInn" db:"buyer_inn"`

	SellerID    uuid.UUID `json:"sellerId" db:"seller_id"`
	SellerName  string    `json:"sellerName" db:"seller_name"`
	SellerPhone string    `json:"sellerPhone" db:"seller_phone"`
	SellerEmail string    `json:"sellerEmail" db:"seller_email"`

	OfferID   uuid.UUID `json:"offerId" db:"offer_id"`
	IsRequest bool      `json:"isRequest" db:"is_request"`

	Title            string  `json:"title" db:"title"`
	Unit             string  `json:"unit" db:"unit"`
	Quantity         int     `json:"quantity" db:"quantity"`
	OriginalQuantity int     `json:"originalQuantity" db:"original_quantity"`
	PricePerUnit     float64 `json:"pricePerUnit" db:"price_per_unit"`
	TotalAmount      float64 `json:"totalAmount" db:"total_amount"`
	HasVAT           bool    `json:"hasVat" db:"has_vat"`
	VATAmount        float64 `json:"vatAmount" db:"vat_amount"`

	DeliveryType    string     `json:"deliveryType,omitempty" db:"delivery_type"`
	DeliveryAddress string     `json:"deliveryAddress,omitempty" db:"delivery_address"`
	District        string     `json:"district,omitempty" db:"district"`
	DeliveryDays    int        `json:"deliveryDays,omitempty" db:"delivery_days"`
	TrackingNumber  string     `json:"trackingNumber,omitempty" db:"tracking_number"`
	DeliveryDate    *time.Time `json:"deliveryDate,omitempty" db:"delivery_date"`

	// Negotiation overlay. Null until the first counter; retained for
	// audit after acceptance.
	CounterPricePerUnit  *float64   `json:"counterPricePerUnit,omitempty" db:"counter_price_per_unit"`
	CounterTotalAmount   *float64   `json:"counterTotalAmount,omitempty" db:"counter_total_amount"`
	CounterOfferMessage  *string    `json:"counterOfferMessage,omitempty" db:"counter_offer_message"`
	CounterOfferedAt     *time.Time `json:"counterOfferedAt,omitempty" db:"counter_offered_at"`
	CounterOfferedBy     *PartyRole `json:"counterOfferedBy,omitempty" db:"counter_offered_by"`
	BuyerAcceptedCounter bool       `json:"buyerAcceptedCounter" db:"buyer_accepted_counter"`

	Status             OrderStatus `json:"status" db:"status"`
	OrderDate          time.Time   `json:"orderDate" db:"order_date"`
	CompletedDate      *time.Time  `json:"completedDate,omitempty" db:"completed_date"`
	CancelledBy        *PartyRole  `json:"cancelledBy,omitempty" db:"cancelled_by"`
	CancellationReason string      `json:"cancellationReason,omitempty" db:"cancellation_reason"`
	UpdatedAt          time.Time   `json:"updatedAt" db:"updated_at"`

	BuyerComment  string `json:"buyerComment,omitempty" db:"buyer_comment"`
	SellerComment string `json:"sellerComment,omitempty" db:"seller_comment"`

	Attachments []Attachment `json:"attachments,omitempty" db:"attachments"`
}

// RoleOf returns the role the user plays on this order, or "" if the
// user is not a party to it.
func (o *Order) RoleOf(userID uuid.UUID) PartyRole {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	}
	return ""
}

// HasStandingCounter reports whether a counter-offer is awaiting an answer.
func (o *Order) HasStandingCounter() bool {
	return o.CounterOfferedBy != nil && o.CounterPricePerUnit != nil
}

// CreateOrderRequest is the payload of POST /orders.
type CreateOrderRequest struct {
	OfferID         uuid.UUID    `json:"offerId"`
	Quantity        int          `json:"quantity"`
	CounterPrice    *float64     `json:"counterPrice,omitempty"`
	CounterMessage  string       `json:"counterMessage,omitempty"`
	DeliveryType    string       `json:"deliveryType,omitempty"`
	DeliveryAddress string       `json:"deliveryAddress,omitempty"`
	District        string       `json:"district,omitempty"`
	DeliveryDays    int          `json:"deliveryDays,omitempty"`
	BuyerComment    string       `json:"buyerComment,omitempty"`
	HasVAT          bool         `json:"hasVat,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// CreateOrderResponse is returned by POST /orders.
type CreateOrderResponse struct {
	ID          uuid.UUID   `json:"id"`
	OrderNumber string      `json:"orderNumber"`
	OrderDate   time.Time   `json:"orderDate"`
	Status      OrderStatus `json:"status"`
}

// OrderPatch is the payload of PUT /orders?id=X. The negotiation engine
// dispatches on which field family is present.
type OrderPatch struct {
	Status             *OrderStatus `json:"status,omitempty"`
	CancellationReason string       `json:"cancellationReason,omitempty"`

	CounterPrice    *float64 `json:"counterPrice,omitempty"`
	CounterQuantity *int     `json:"counterQuantity,omitempty"`
	CounterMessage  string   `json:"counterMessage,omitempty"`

	AcceptCounter bool `json:"acceptCounter,omitempty"`

	EditResponse bool         `json:"editResponse,omitempty"`
	PricePerUnit *float64     `json:"pricePerUnit,omitempty"`
	Quantity     *int         `json:"quantity,omitempty"`
	BuyerComment *string      `json:"buyerComment,omitempty"`
	DeliveryDays *int         `json:"deliveryDays,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`

	TrackingNumber *string    `json:"trackingNumber,omitempty"`
	DeliveryDate   *time.Time `json:"deliveryDate,omitempty"`
	SellerComment  *string    `json:"sellerComment,omitempty"`
}

// ListFilter selects which of the principal's orders to return.
type ListFilter struct {
	Type   string // "purchase", "sale" or "all"
	Status OrderStatus
	Limit  int
	Offset int
}

// OrderView is a list/detail row: the order plus fields derived for the
// reading principal.
type OrderView struct {
	Order
	UnreadMessages         int       `json:"unreadMessages"`
	OfferAvailableQuantity int       `json:"offerAvailableQuantity"`
	OfferPricePerUnit      float64   `json:"offerPricePerUnit"`
	Role                   PartyRole `json:"role,omitempty"`
}
