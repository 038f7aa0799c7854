package interact

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Status is the derived interaction state of an entity.
type Status string

const (
	StatusIdle   Status = "idle"   // No current overlaps
	StatusActive Status = "active" // Overlapping at least one peer
)

// StatusFunc is called every time an interactable asserts a status, with
// the status it held just before the operation. Re-assertions (from ==
// to) are delivered too.
type StatusFunc func(x *Interactable, from, to Status)

// Interactable tracks the peers an entity currently overlaps. Membership is
// kept symmetric: every mutation of this set is mirrored on the peer
// through the peer's own BeginOverlap/EndOverlap.
//
// An Interactable is not safe for concurrent use.
type Interactable struct {
	id       uuid.UUID
	peers    map[*Interactable]struct{}
	onStatus StatusFunc
}

// New returns an idle interactable for the entity id.
func New(id uuid.UUID) *Interactable {
	return &Interactable{
		id:    id,
		peers: make(map[*Interactable]struct{}),
	}
}

func (x *Interactable) ID() uuid.UUID { return x.id }

// OnStatus sets the status hook. Passing nil removes it.
func (x *Interactable) OnStatus(fn StatusFunc) { x.onStatus = fn }

// Status is Active iff the overlap set is non-empty.
func (x *Interactable) Status() Status {
	if len(x.peers) > 0 {
		return StatusActive
	}
	return StatusIdle
}

func (x *Interactable) IsActive() bool { return x.Status() == StatusActive }

func (x *Interactable) IsIdle() bool { return x.Status() == StatusIdle }

// Overlaps reports whether peer is in the overlap set.
func (x *Interactable) Overlaps(peer *Interactable) bool {
	_, ok := x.peers[peer]
	return ok
}

// Len is the size of the overlap set.
func (x *Interactable) Len() int { return len(x.peers) }

// Peers returns the current overlap set ordered by id.
func (x *Interactable) Peers() []*Interactable {
	out := make([]*Interactable, 0, len(x.peers))
	for p := range x.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].id[:], out[j].id[:]) < 0
	})
	return out
}

// BeginOverlap adds peer and asserts Active, even when already active.
// Adding a present peer is a no-op on the set. Self and nil are ignored.
func (x *Interactable) BeginOverlap(peer *Interactable) {
	if peer == nil || peer == x {
		return
	}
	from := x.Status()
	x.peers[peer] = struct{}{}
	x.assert(from, StatusActive)

	if !peer.Overlaps(x) {
		peer.BeginOverlap(x)
	}
}

// EndOverlap removes peer. The entity goes Idle once the set is empty and
// stays Active otherwise. Removing an absent peer is safe.
func (x *Interactable) EndOverlap(peer *Interactable) {
	if peer == nil || peer == x {
		return
	}
	from := x.Status()
	delete(x.peers, peer)
	if len(x.peers) == 0 {
		x.assert(from, StatusIdle)
	}

	if peer.Overlaps(x) {
		peer.EndOverlap(x)
	}
}

// Teardown severs the entity from every peer before it leaves the scene,
// then forces it Idle with an empty set.
func (x *Interactable) Teardown() {
	for _, p := range x.Peers() {
		p.EndOverlap(x)
	}
	from := x.Status()
	clear(x.peers)
	x.assert(from, StatusIdle)
}

func (x *Interactable) assert(from, to Status) {
	if x.onStatus != nil {
		x.onStatus(x, from, to)
	}
}
