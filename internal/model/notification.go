package model

import "github.com/google/uuid"

// NotificationKind labels the transition that produced a notification.
type NotificationKind string

const (
	KindNewResponse     NotificationKind = "new_response"
	KindCounterOffered  NotificationKind = "counter_offered"
	KindCounterAccepted NotificationKind = "counter_accepted"
	KindOrderAccepted   NotificationKind = "order_accepted"
	KindOrderRejected   NotificationKind = "order_rejected"
	KindOrderCancelled  NotificationKind = "order_cancelled"
	KindOrderCompleted  NotificationKind = "order_completed"
	KindNewMessage      NotificationKind = "new_message"
)

// Notification is the payload handed to transport adapters, exactly as
// they consume it on the wire.
type Notification struct {
	UserID  uuid.UUID        `json:"userId"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	URL     string           `json:"url"`
	Kind    NotificationKind `json:"kind,omitempty"`
}
