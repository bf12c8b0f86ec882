package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int
	messages   map[int]*Message
	users      []UserIdentity
	failInsert bool
	failUpdate bool
	failList   bool
}

func newFakeStore(users ...UserIdentity) *fakeStore {
	return &fakeStore{messages: make(map[int]*Message), users: users}
}

func (s *fakeStore) InsertMessage(_ context.Context, m *Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return 0, errors.New("store unavailable")
	}
	s.nextID++
	stored := *m
	stored.ID = s.nextID
	s.messages[s.nextID] = &stored
	return s.nextID, nil
}

func (s *fakeStore) UpdateMessageStatus(_ context.Context, id int, status Status, deliveredAt, readAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return false, errors.New("store unavailable")
	}
	m, ok := s.messages[id]
	if !ok {
		return false, errors.New("message not found")
	}
	if m.Status >= status {
		return false, nil
	}
	m.Status = status
	// Timestamps fill in, they never rewrite, mirroring the store's SQL.
	if deliveredAt != nil && m.DeliveredAt == nil {
		m.DeliveredAt = deliveredAt
	}
	if readAt != nil && m.ReadAt == nil {
		m.ReadAt = readAt
	}
	return true, nil
}

func (s *fakeStore) GetMessageOwner(_ context.Context, id int) (int, *int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return 0, nil, errors.New("message not found")
	}
	return m.SenderID, m.ReceiverID, nil
}

func (s *fakeStore) ListUsers(_ context.Context) ([]UserIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("directory unavailable")
	}
	return append([]UserIdentity(nil), s.users...), nil
}

func (s *fakeStore) message(t *testing.T, id int) Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	require.True(t, ok, "message %d not stored", id)
	return *m
}

// fakePusher records every push; individual connections can be failed.
type push struct {
	connID  string
	event   string
	payload any
}

type fakePusher struct {
	mu        sync.Mutex
	pushes    []push
	failConns map[string]bool
}

func newFakePusher() *fakePusher {
	return &fakePusher{failConns: make(map[string]bool)}
}

func (p *fakePusher) Push(connID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failConns[connID] {
		return errors.New("dead socket")
	}
	p.pushes = append(p.pushes, push{connID: connID, event: event, payload: payload})
	return nil
}

func (p *fakePusher) byEvent(event string) []push {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []push
	for _, ps := range p.pushes {
		if ps.event == event {
			out = append(out, ps)
		}
	}
	return out
}

func (p *fakePusher) count(connID, event string) int {
	n := 0
	for _, ps := range p.byEvent(event) {
		if ps.connID == connID {
			n++
		}
	}
	return n
}

func (p *fakePusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = nil
}

func newTestHub(store *fakeStore) (*Hub, *fakePusher) {
	pusher := newFakePusher()
	h := New(NewRegistry(), store, pusher, zerolog.Nop())
	return h, pusher
}

var (
	alice = UserIdentity{ID: 1, Username: "alice"}
	bob   = UserIdentity{ID: 2, Username: "bob"}
	carol = UserIdentity{ID: 3, Username: "carol"}
)

func TestAttachBroadcastsRoster(t *testing.T) {
	store := newFakeStore(alice, bob)
	h, pusher := newTestHub(store)

	h.Attach(context.Background(), "conn-a1", alice)

	rosters := pusher.byEvent(EventPresence)
	require.Len(t, rosters, 1)
	assert.Equal(t, "conn-a1", rosters[0].connID)

	roster, ok := rosters[0].payload.([]PresenceEntry)
	require.True(t, ok)
	require.Len(t, roster, 2)
	byID := map[int]PresenceEntry{}
	for _, e := range roster {
		byID[e.ID] = e
	}
	assert.True(t, byID[alice.ID].Online)
	assert.False(t, byID[bob.ID].Online)

	joins := pusher.byEvent(EventUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, UserEvent{Username: "alice"}, joins[0].payload)
}

func TestSecondDeviceDoesNotReannounce(t *testing.T) {
	store := newFakeStore(alice)
	h, pusher := newTestHub(store)

	h.Attach(context.Background(), "conn-a1", alice)
	pusher.reset()

	h.Attach(context.Background(), "conn-a2", alice)

	// No second join announcement, but the roster still goes out and
	// reports alice online exactly once.
	assert.Empty(t, pusher.byEvent(EventUserJoined))
	rosters := pusher.byEvent(EventPresence)
	require.Len(t, rosters, 2) // one per live connection
	roster := rosters[0].payload.([]PresenceEntry)
	require.Len(t, roster, 1)
	assert.True(t, roster[0].Online)
}

func TestDetachWithRemainingConnectionStaysOnline(t *testing.T) {
	store := newFakeStore(alice)
	h, pusher := newTestHub(store)

	h.Attach(context.Background(), "conn-a1", alice)
	h.Attach(context.Background(), "conn-a2", alice)
	pusher.reset()

	h.Detach(context.Background(), "conn-a1")

	assert.Empty(t, pusher.byEvent(EventUserLeft))
	rosters := pusher.byEvent(EventPresence)
	require.Len(t, rosters, 1)
	roster := rosters[0].payload.([]PresenceEntry)
	require.Len(t, roster, 1)
	assert.True(t, roster[0].Online)

	h.Detach(context.Background(), "conn-a2")
	require.Len(t, pusher.byEvent(EventUserLeft), 1)
	assert.False(t, h.Registry().IsOnline(alice.ID))
}

func TestDetachUnknownConnectionIsNoop(t *testing.T) {
	store := newFakeStore(alice)
	h, pusher := newTestHub(store)

	h.Detach(context.Background(), "never-attached")

	assert.Empty(t, pusher.pushes)
}

func TestDirectoryFailureSuppressesBroadcastOnly(t *testing.T) {
	store := newFakeStore(alice)
	store.failList = true
	h, pusher := newTestHub(store)

	h.Attach(context.Background(), "conn-a1", alice)

	// The roster cycle is skipped but the connection survives.
	assert.Empty(t, pusher.byEvent(EventPresence))
	assert.True(t, h.Registry().IsOnline(alice.ID))

	store.failList = false
	h.BroadcastPresence(context.Background())
	assert.Len(t, pusher.byEvent(EventPresence), 1)
}

func TestTypingExcludesTypist(t *testing.T) {
	store := newFakeStore(alice, bob)
	h, pusher := newTestHub(store)

	h.Attach(context.Background(), "conn-a1", alice)
	h.Attach(context.Background(), "conn-a2", alice)
	h.Attach(context.Background(), "conn-b1", bob)
	pusher.reset()

	h.Typing("conn-a1", alice.Username)

	typing := pusher.byEvent(EventTyping)
	require.Len(t, typing, 2)
	for _, ps := range typing {
		assert.NotEqual(t, "conn-a1", ps.connID)
		assert.Equal(t, UserEvent{Username: "alice"}, ps.payload)
	}
}

func TestPushFailureIsIsolated(t *testing.T) {
	store := newFakeStore(alice, bob)
	h, pusher := newTestHub(store)

	h.Attach(context.Background(), "conn-a1", alice)
	h.Attach(context.Background(), "conn-b1", bob)
	pusher.reset()
	pusher.failConns["conn-b1"] = true

	msg, err := h.Send(context.Background(), alice, nil, "hello everyone")
	require.NoError(t, err)
	require.NotNil(t, msg)

	// The dead socket never blocks or fails delivery to the healthy one.
	assert.Equal(t, 1, pusher.count("conn-a1", EventMessageNew))
	assert.Equal(t, 0, pusher.count("conn-b1", EventMessageNew))
}
