package chat

import (
	"slices"
	"sync"

	"whisper/internal/types"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Handle is a way to push events to one admitted connection.
type Handle interface {
	UserID() uuid.UUID
	Deliver(ev types.Event) error
}

// Presence resolves a user to its live connection.
type Presence interface {
	Lookup(userID uuid.UUID) (Handle, bool)
}

// Registry maps each online user to exactly one connection handle.
// A second Register for the same user replaces the first; the replaced
// handle is returned to the caller and left open.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Handle
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]Handle)}
}

var _ Presence = (*Registry)(nil)

func (r *Registry) Register(userID uuid.UUID, h Handle) (prev Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.entries[userID]
	r.entries[userID] = h
	return prev
}

// Unregister removes the entry only while it still points at h.
func (r *Registry) Unregister(userID uuid.UUID, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[userID]; ok && current == h {
		delete(r.entries, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(userID uuid.UUID) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.entries[userID]
	return h, ok
}

// Snapshot returns the online user ids in a stable order.
func (r *Registry) Snapshot() []uuid.UUID {
	r.mu.Lock()
	ids := lo.Keys(r.entries)
	r.mu.Unlock()

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

// Online is Snapshot as a set.
func (r *Registry) Online() map[uuid.UUID]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[uuid.UUID]struct{}, len(r.entries))
	for id := range r.entries {
		set[id] = struct{}{}
	}
	return set
}
