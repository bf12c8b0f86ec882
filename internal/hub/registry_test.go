package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAttachDetach(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsOnline(alice.ID))
	assert.Empty(t, r.ConnectionsFor(alice.ID))

	assert.True(t, r.Attach("conn-1", alice), "first connection")
	assert.True(t, r.IsOnline(alice.ID))
	assert.Equal(t, []string{"conn-1"}, r.ConnectionsFor(alice.ID))

	identity, last, ok := r.Detach("conn-1")
	require.True(t, ok)
	assert.True(t, last, "last connection")
	assert.Equal(t, alice, identity)
	assert.False(t, r.IsOnline(alice.ID))
	assert.Empty(t, r.ConnectionsFor(alice.ID))
}

func TestRegistryMultiDevice(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Attach("conn-1", alice))
	assert.False(t, r.Attach("conn-2", alice), "second device is not a join")
	assert.Len(t, r.ConnectionsFor(alice.ID), 2)

	_, last, ok := r.Detach("conn-1")
	require.True(t, ok)
	assert.False(t, last)
	assert.True(t, r.IsOnline(alice.ID), "one device left, still online")

	_, last, ok = r.Detach("conn-2")
	require.True(t, ok)
	assert.True(t, last)
	assert.False(t, r.IsOnline(alice.ID))
}

func TestRegistryAttachIdempotent(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Attach("conn-1", alice))
	assert.False(t, r.Attach("conn-1", alice), "re-attach is never a join")

	assert.Len(t, r.ConnectionsFor(alice.ID), 1)
	assert.Len(t, r.Connections(), 1)
}

func TestRegistryRebindConnection(t *testing.T) {
	r := NewRegistry()

	r.Attach("conn-1", alice)
	r.Attach("conn-1", bob)

	assert.False(t, r.IsOnline(alice.ID))
	assert.True(t, r.IsOnline(bob.ID))
	assert.Len(t, r.Connections(), 1)
}

func TestRegistryDetachUnknown(t *testing.T) {
	r := NewRegistry()

	_, last, ok := r.Detach("nope")
	assert.False(t, ok)
	assert.False(t, last)
}

func TestRegistryConnectionsExcept(t *testing.T) {
	r := NewRegistry()

	r.Attach("conn-1", alice)
	r.Attach("conn-2", alice)
	r.Attach("conn-3", bob)

	rest := r.ConnectionsExcept("conn-2")
	assert.ElementsMatch(t, []string{"conn-1", "conn-3"}, rest)
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			user := UserIdentity{ID: n % 5, Username: fmt.Sprintf("user-%d", n%5)}
			connID := fmt.Sprintf("conn-%d", n)
			for j := 0; j < 100; j++ {
				r.Attach(connID, user)
				r.ConnectionsFor(user.ID)
				r.IsOnline(user.ID)
				r.Connections()
				r.Detach(connID)
			}
		}(i)
	}
	wg.Wait()

	// Every worker detached last: nobody is left online and the invariant
	// IsOnline(u) == (len(ConnectionsFor(u)) > 0) holds for all users.
	for id := 0; id < 5; id++ {
		assert.False(t, r.IsOnline(id))
		assert.Empty(t, r.ConnectionsFor(id))
	}
	assert.Empty(t, r.Connections())
}

func TestRegistryConcurrentFirstAttachReportedOnce(t *testing.T) {
	r := NewRegistry()

	const devices = 20
	var firsts int32
	var wg sync.WaitGroup
	wg.Add(devices)

	// All of alice's devices race to connect at once. Exactly one of them
	// may observe the offline-to-online transition, or every racer would
	// announce a join.
	for i := 0; i < devices; i++ {
		go func(n int) {
			defer wg.Done()
			if r.Attach(fmt.Sprintf("conn-%d", n), alice) {
				atomic.AddInt32(&firsts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts, "exactly one attach sees the transition")
	assert.Len(t, r.ConnectionsFor(alice.ID), devices)

	// And symmetrically, exactly one detach sees online-to-offline.
	var lasts int32
	wg.Add(devices)
	for i := 0; i < devices; i++ {
		go func(n int) {
			defer wg.Done()
			if _, last, ok := r.Detach(fmt.Sprintf("conn-%d", n)); ok && last {
				atomic.AddInt32(&lasts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), lasts, "exactly one detach sees the transition")
	assert.False(t, r.IsOnline(alice.ID))
}

func TestRegistryOnlineMatchesConnections(t *testing.T) {
	r := NewRegistry()

	steps := []struct {
		attach bool
		connID string
	}{
		{true, "c1"},
		{true, "c2"},
		{false, "c1"},
		{true, "c3"},
		{false, "c2"},
		{false, "c3"},
	}

	for _, step := range steps {
		if step.attach {
			r.Attach(step.connID, alice)
		} else {
			r.Detach(step.connID)
		}
		assert.Equal(t, len(r.ConnectionsFor(alice.ID)) > 0, r.IsOnline(alice.ID))
	}
}
