package interact

import (
	"bytes"
	"sort"
	"sync"

	"github.com/banshee-data/trackbind/internal/monitoring"
	"github.com/google/uuid"
)

// Registry adapts an overlap service to interactables. Begin/End
// notifications name both participants by entity id; a notification is
// delivered only when both participants are registered interactables.
//
// Mutations are expected from the host loop; the lock only guards
// Snapshot readers on other goroutines.
type Registry struct {
	mu       sync.RWMutex
	items    map[uuid.UUID]*Interactable
	onStatus StatusFunc
}

// NewRegistry returns an empty registry. onStatus, if non-nil, is
// installed on every registered interactable.
func NewRegistry(onStatus StatusFunc) *Registry {
	return &Registry{
		items:    make(map[uuid.UUID]*Interactable),
		onStatus: onStatus,
	}
}

// Register makes the entity id an interactable. Registering an id twice
// returns the existing interactable.
func (r *Registry) Register(id uuid.UUID) *Interactable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.items[id]; ok {
		return x
	}
	x := New(id)
	x.OnStatus(r.onStatus)
	r.items[id] = x
	return x
}

// Get returns the interactable registered for id.
func (r *Registry) Get(id uuid.UUID) (*Interactable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	x, ok := r.items[id]
	return x, ok
}

func (r *Registry) pair(a, b uuid.UUID) (*Interactable, *Interactable, bool) {
	xa, okA := r.items[a]
	xb, okB := r.items[b]
	if !okA || !okB || a == b {
		return nil, nil, false
	}
	return xa, xb, true
}

// Begin reports an overlap starting between a and b. It returns false
// when the notification was ignored.
func (r *Registry) Begin(a, b uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	xa, xb, ok := r.pair(a, b)
	if !ok {
		return false
	}
	xa.BeginOverlap(xb)
	xb.BeginOverlap(xa)
	return true
}

// End reports an overlap ending between a and b. It returns false when
// the notification was ignored.
func (r *Registry) End(a, b uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	xa, xb, ok := r.pair(a, b)
	if !ok {
		return false
	}
	xa.EndOverlap(xb)
	xb.EndOverlap(xa)
	return true
}

// Remove tears the interactable down and forgets it. It returns false if
// id was not registered.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.items[id]
	if !ok {
		return false
	}
	peers := x.Len()
	x.Teardown()
	delete(r.items, id)
	if peers > 0 {
		monitoring.Logf("interact: %s removed mid-overlap, released %d peers", id, peers)
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Entry is a point-in-time view of one interactable.
type Entry struct {
	ID     uuid.UUID   `json:"id"`
	Status Status      `json:"status"`
	Peers  []uuid.UUID `json:"peers,omitempty"`
}

// Snapshot returns every interactable ordered by id.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.items))
	for id, x := range r.items {
		e := Entry{ID: id, Status: x.Status()}
		for _, p := range x.Peers() {
			e.Peers = append(e.Peers, p.ID())
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}
