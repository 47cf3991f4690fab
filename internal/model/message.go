package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderMessage is one entry in the per-order conversation. IsRead is the
// non-sender's perspective: it flips when the counterparty fetches the
// conversation.
type OrderMessage struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	OrderID     uuid.UUID    `json:"orderId" db:"order_id"`
	SenderID    uuid.UUID    `json:"senderId" db:"sender_id"`
	SenderName  string       `json:"senderName" db:"sender_name"`
	SenderType  PartyRole    `json:"senderType" db:"sender_type"`
	Message     string       `json:"message" db:"message"`
	Attachments []Attachment `json:"attachments,omitempty" db:"attachments"`
	IsRead      bool         `json:"isRead" db:"is_read"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
}

// InlineFile is a file payload accepted inline on message post; it is
// uploaded to the object store before the message row is written.
type InlineFile struct {
	Data     []byte `json:"data"`
	Mime     string `json:"mime"`
	Filename string `json:"filename"`
}

// PostMessageRequest is the payload of POST /orders?message=true.
// Either Text or File must be present.
type PostMessageRequest struct {
	OrderID uuid.UUID   `json:"orderId"`
	Text    string      `json:"text,omitempty"`
	File    *InlineFile `json:"file,omitempty"`
}

// PostMessageResponse is returned on a successful post.
type PostMessageResponse struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
