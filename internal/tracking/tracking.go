package tracking

import (
	"fmt"

	"github.com/banshee-data/trackbind/internal/scene"
)

// State is the sensing service's confidence in a trackable.
type State string

const (
	StateTracking State = "tracking" // Pose is live
	StateLimited  State = "limited"  // Pose is stale or low confidence
	StateNone     State = "none"     // Not tracked
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateTracking, StateLimited, StateNone:
		return true
	}
	return false
}

// Live reports whether a pose in this state should be mirrored.
func (s State) Live() bool { return s == StateTracking }

// Trackable is one recognised marker as reported by the sensing service.
type Trackable struct {
	Label string
	State State
	Pose  scene.Pose
}

func (t Trackable) String() string {
	return fmt.Sprintf("%s[%s] %s", t.Label, t.State, t.Pose)
}

// Change tags a record inside a batch.
type Change string

const (
	ChangeAdded   Change = "added"
	ChangeUpdated Change = "updated"
	ChangeRemoved Change = "removed"
)

// Batch is one trackables-changed event. Removed entries carry the last
// known trackable value.
type Batch struct {
	Added   []Trackable
	Updated []Trackable
	Removed []Trackable
}

// Record is a single tagged entry of a batch.
type Record struct {
	Change    Change
	Trackable Trackable
}

// Records flattens the batch: added, then updated, then removed, each in
// arrival order.
func (b Batch) Records() []Record {
	out := make([]Record, 0, b.Len())
	for _, t := range b.Added {
		out = append(out, Record{Change: ChangeAdded, Trackable: t})
	}
	for _, t := range b.Updated {
		out = append(out, Record{Change: ChangeUpdated, Trackable: t})
	}
	for _, t := range b.Removed {
		out = append(out, Record{Change: ChangeRemoved, Trackable: t})
	}
	return out
}

func (b Batch) Len() int { return len(b.Added) + len(b.Updated) + len(b.Removed) }

// Handler receives batches from a Source.
type Handler func(Batch)

// Source delivers trackables-changed batches to subscribers.
type Source interface {
	// Subscribe registers h and returns an id for Unsubscribe.
	Subscribe(h Handler) string
	// Unsubscribe removes the handler registered under id.
	Unsubscribe(id string)
}
