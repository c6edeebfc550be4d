package chat

import (
	"sync"
	"testing"

	"whisper/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id  uuid.UUID
	err error

	mu     sync.Mutex
	events []types.Event
}

func newFakeHandle(id uuid.UUID) *fakeHandle {
	return &fakeHandle{id: id}
}

func (f *fakeHandle) UserID() uuid.UUID { return f.id }

func (f *fakeHandle) Deliver(ev types.Event) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeHandle) Events(t types.EventType) []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Event
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func Test_Lookup_Unregistered_User_Is_Absent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	h, ok := r.Lookup(uuid.New())

	req.False(ok)
	req.Nil(h)
	req.Empty(r.Snapshot())
}

func Test_Register_Last_Writer_Wins(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	u := uuid.New()
	c1, c2 := newFakeHandle(u), newFakeHandle(u)

	// Given a first connection
	req.Nil(r.Register(u, c1))

	// When a second connection registers for the same user
	prev := r.Register(u, c2)

	// Then the first is handed back and the second is the live one
	req.Same(c1, prev)
	h, ok := r.Lookup(u)
	req.True(ok)
	req.Same(c2, h)
	req.Len(r.Snapshot(), 1)
}

func Test_Unregister_Stale_Handle_Is_Noop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	u := uuid.New()
	c1, c2 := newFakeHandle(u), newFakeHandle(u)
	r.Register(u, c1)
	r.Register(u, c2)

	// When the orphaned connection goes away
	removed := r.Unregister(u, c1)

	// Then the live entry survives
	req.False(removed)
	h, ok := r.Lookup(u)
	req.True(ok)
	req.Same(c2, h)

	req.True(r.Unregister(u, c2))
	_, ok = r.Lookup(u)
	req.False(ok)
}

func Test_Snapshot_Is_Sorted_And_Detached(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		r.Register(id, newFakeHandle(id))
	}

	snap := r.Snapshot()
	req.ElementsMatch(ids, snap)
	req.IsNonDecreasing([]string{snap[0].String(), snap[1].String(), snap[2].String()})

	r.Unregister(ids[0], mustLookup(t, r, ids[0]))
	req.Len(snap, 3)
	req.Len(r.Online(), 2)
}

func Test_Registry_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			h := newFakeHandle(id)
			r.Register(id, h)
			r.Lookup(id)
			r.Snapshot()
			r.Unregister(id, h)
		}()
	}
	wg.Wait()
	req.Empty(r.Snapshot())
}

func mustLookup(t *testing.T, r *Registry, id uuid.UUID) Handle {
	t.Helper()
	h, ok := r.Lookup(id)
	require.True(t, ok)
	return h
}
