package hub

import "sync"

// Registry is the bidirectional mapping between live connections and the
// users that own them. A user may hold several connections at once
// (multi-device). All methods are safe for unbounded concurrent callers
// and never block on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]UserIdentity
	users map[int]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]UserIdentity),
		users: make(map[int]map[string]struct{}),
	}
}

// Attach registers a live connection for a user and reports whether it is
// the user's first one. The transition is decided under the write lock, so
// concurrent attaches for the same user see it exactly once. Re-attaching
// the same connection ID is idempotent; if the ID was bound to another user
// it is rebound.
func (r *Registry) Attach(connID string, identity UserIdentity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok {
		if prev.ID == identity.ID {
			r.conns[connID] = identity
			return false
		}
		r.removeLocked(connID, prev.ID)
	}

	first := len(r.users[identity.ID]) == 0

	r.conns[connID] = identity
	set, ok := r.users[identity.ID]
	if !ok {
		set = make(map[string]struct{})
		r.users[identity.ID] = set
	}
	set[connID] = struct{}{}
	return first
}

// Detach removes a connection and reports which user owned it and whether
// it was their last one, decided under the same write lock as the removal.
// Unknown IDs are a no-op.
func (r *Registry) Detach(connID string) (UserIdentity, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.conns[connID]
	if !ok {
		return UserIdentity{}, false, false
	}
	r.removeLocked(connID, identity.ID)
	last := len(r.users[identity.ID]) == 0
	return identity, last, true
}

func (r *Registry) removeLocked(connID string, userID int) {
	delete(r.conns, connID)
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}

// ConnectionsFor returns a snapshot of a user's live connection IDs.
// An empty result means the user is offline.
func (r *Registry) ConnectionsFor(userID int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// IsOnline reports whether a user has at least one live connection.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Connections returns a snapshot of every live connection ID.
func (r *Registry) Connections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// ConnectionsExcept returns every live connection ID except the given one.
// Used for typing relays, where the typist should not hear themselves.
func (r *Registry) ConnectionsExcept(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}
