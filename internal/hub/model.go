package hub

import "time"

// Status tracks the delivery lifecycle of a direct message.
// Transitions are monotonic: Sent -> Delivered -> Read.
type Status int

const (
	StatusSent      Status = iota // persisted, receiver not yet reached
	StatusDelivered               // pushed to at least one receiver connection
	StatusRead                    // receiver acknowledged via MarkRead
)

// UserIdentity is the authenticated identity attached to a connection.
// It is supplied by the auth layer; the hub never re-derives it.
type UserIdentity struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Message is the unit of the delivery pipeline. The ID is assigned by the
// store on first insert and immutable afterwards. A nil ReceiverID means
// the message is broadcast to everyone and never advances past Sent.
type Message struct {
	ID          int        `json:"id"`
	Content     string     `json:"content"`
	SenderID    int        `json:"senderId"`
	SenderName  string     `json:"senderName,omitempty"`
	ReceiverID  *int       `json:"receiverId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      Status     `json:"status"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// PresenceEntry is one row of the roster broadcast to all clients on every
// connect/disconnect. It is derived from the registry, never stored.
type PresenceEntry struct {
	UserIdentity
	Online bool `json:"isOnline"`
}
