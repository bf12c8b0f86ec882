package hub

import (
	"context"
	"encoding/json"
	"time"
)

// Event names pushed to clients. The payload for message events is the
// Message itself; the rest use the structs below.
const (
	EventMessageNew    = "message:new"
	EventMessageStatus = "message:status"
	EventPresence      = "presence:update"
	EventCallOffer     = "call:offer"
	EventCallSignal    = "call:signal"
	EventCallAnswer    = "call:answer"
	EventCallEnd       = "call:end"
	EventTyping        = "user:typing"
	EventUserJoined    = "user:joined"
	EventUserLeft      = "user:left"
	EventError         = "error"
)

// StatusUpdate notifies a sender that one of their messages advanced.
type StatusUpdate struct {
	MessageID int        `json:"messageId"`
	Status    Status     `json:"status"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// CallOffer is pushed to every connection of a call's receiver.
type CallOffer struct {
	CallerID   int    `json:"callerId"`
	CallerName string `json:"callerName"`
	IsVideo    bool   `json:"isVideo"`
}

// CallSignal relays an opaque SDP/ICE payload between two peers.
type CallSignal struct {
	SenderID int             `json:"senderId"`
	Signal   json.RawMessage `json:"signal"`
}

// CallAnswer is pushed to every connection of the original caller.
type CallAnswer struct {
	ReceiverID   int    `json:"receiverId"`
	ReceiverName string `json:"receiverName"`
	Accepted     bool   `json:"accepted"`
}

// CallEnd tells the far end the call was torn down.
type CallEnd struct {
	EnderID int `json:"enderId"`
}

// UserEvent announces a user joining or leaving, and typing activity.
type UserEvent struct {
	Username string `json:"username"`
}

// Pusher delivers one opaque event to one named connection. Implementations
// must not block indefinitely; a failed push is isolated to its target.
type Pusher interface {
	Push(connID, event string, payload any) error
}

// Store is the persistence contract the hub depends on. Calls are expected
// to be synchronous and atomic; the hub holds no locks while calling them.
type Store interface {
	// InsertMessage persists a new message and returns its assigned ID.
	InsertMessage(ctx context.Context, m *Message) (int, error)
	// UpdateMessageStatus advances a message's status. The store enforces
	// monotonicity (status may never decrease) and reports whether the
	// update applied.
	UpdateMessageStatus(ctx context.Context, id int, status Status, deliveredAt, readAt *time.Time) (bool, error)
	// GetMessageOwner returns the sender and receiver of a stored message.
	GetMessageOwner(ctx context.Context, id int) (senderID int, receiverID *int, err error)
	// ListUsers returns the full user directory for the presence roster.
	ListUsers(ctx context.Context) ([]UserIdentity, error)
}
