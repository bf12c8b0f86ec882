package hub

import "errors"

var (
	// ErrInvalidMessage rejects empty or whitespace-only content before any I/O.
	ErrInvalidMessage = errors.New("message content cannot be empty")

	// ErrPersistenceFailed means the store rejected a write; the whole
	// operation is aborted and no fan-out happens.
	ErrPersistenceFailed = errors.New("failed to persist message")

	// ErrPeerOffline means a signaling target has no live connections.
	ErrPeerOffline = errors.New("peer is not online")
)
