package hub

import (
	"context"

	"github.com/rs/zerolog"

	"go-messenger/internal/metrics"
)

// Hub is the realtime core: it owns the connection registry and routes
// presence, message and call events between live connections. One instance
// per process; everything it needs is injected.
type Hub struct {
	registry *Registry
	store    Store
	pusher   Pusher
	log      zerolog.Logger
}

func New(registry *Registry, store Store, pusher Pusher, log zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		store:    store,
		pusher:   pusher,
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// Registry exposes the connection registry for read-side collaborators.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Attach registers a connection for an authenticated identity, announces
// the user if this is their first connection, and rebroadcasts the roster.
func (h *Hub) Attach(ctx context.Context, connID string, identity UserIdentity) {
	first := h.registry.Attach(connID, identity)

	metrics.ConnectionsActive.Inc()
	h.log.Info().
		Str("conn_id", connID).
		Int("user_id", identity.ID).
		Msg("connection attached")

	if first {
		h.pushAll(EventUserJoined, UserEvent{Username: identity.Username})
	}
	h.BroadcastPresence(ctx)
}

// Detach removes a connection, announces the user if that was their last
// one, and rebroadcasts the roster. Unknown connections are a no-op.
func (h *Hub) Detach(ctx context.Context, connID string) {
	identity, last, ok := h.registry.Detach(connID)
	if !ok {
		return
	}

	metrics.ConnectionsActive.Dec()
	h.log.Info().
		Str("conn_id", connID).
		Int("user_id", identity.ID).
		Msg("connection detached")

	if last {
		h.pushAll(EventUserLeft, UserEvent{Username: identity.Username})
	}
	h.BroadcastPresence(ctx)
}

// BroadcastPresence pushes the full roster, tagged online/offline, to every
// live connection. A directory fetch failure suppresses this cycle only; it
// never tears down the triggering connection.
func (h *Hub) BroadcastPresence(ctx context.Context) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("presence broadcast skipped: directory fetch failed")
		return
	}

	roster := make([]PresenceEntry, 0, len(users))
	for _, u := range users {
		roster = append(roster, PresenceEntry{
			UserIdentity: u,
			Online:       h.registry.IsOnline(u.ID),
		})
	}

	metrics.PresenceBroadcasts.Inc()
	h.pushAll(EventPresence, roster)
}

// Typing relays a typing notification from one connection to all others.
// Never persisted, never an error.
func (h *Hub) Typing(connID, username string) {
	for _, id := range h.registry.ConnectionsExcept(connID) {
		h.pushTo(id, EventTyping, UserEvent{Username: username})
	}
}

// pushAll fans an event out to every live connection. Per-target failures
// are isolated and logged; one dead socket never blocks the rest.
func (h *Hub) pushAll(event string, payload any) {
	for _, id := range h.registry.Connections() {
		h.pushTo(id, event, payload)
	}
}

func (h *Hub) pushTo(connID, event string, payload any) {
	if err := h.pusher.Push(connID, event, payload); err != nil {
		metrics.PushFailures.Inc()
		h.log.Warn().
			Err(err).
			Str("conn_id", connID).
			Str("event", event).
			Msg("push failed")
	}
}
