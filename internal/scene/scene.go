package scene

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmptyLabel is returned when a template has no label.
	ErrEmptyLabel = errors.New("template label is empty")
	// ErrNotFound is returned when an entity id is not in the scene.
	ErrNotFound = errors.New("entity not found")
)

// Template describes an entity to spawn. Label doubles as the spawned
// entity's name and as the trackable label it is bound to.
type Template struct {
	Label string `json:"label"`
	Asset string `json:"asset,omitempty"`
}

// Entity is a spawned scene object. It is safe to read from other
// goroutines (debug routes) while the host loop writes to it.
type Entity struct {
	mu      sync.RWMutex
	id      uuid.UUID
	name    string
	asset   string
	visible bool
	pose    Pose
}

func (e *Entity) ID() uuid.UUID { return e.id }

func (e *Entity) Asset() string { return e.asset }

func (e *Entity) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name
}

// SetName tags the entity.
func (e *Entity) SetName(name string) {
	e.mu.Lock()
	e.name = name
	e.mu.Unlock()
}

func (e *Entity) Show() {
	e.mu.Lock()
	e.visible = true
	e.mu.Unlock()
}

func (e *Entity) Hide() {
	e.mu.Lock()
	e.visible = false
	e.mu.Unlock()
}

func (e *Entity) Visible() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visible
}

func (e *Entity) SetPosition(p r3.Vec) {
	e.mu.Lock()
	e.pose.Position = p
	e.mu.Unlock()
}

func (e *Entity) SetOrientation(q quat.Number) {
	e.mu.Lock()
	e.pose.Orientation = q
	e.mu.Unlock()
}

func (e *Entity) Pose() Pose {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pose
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s)", e.Name(), e.id)
}

// Scene is the arena of spawned entities.
type Scene struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]*Entity
	order    []uuid.UUID
	onRemove []func(*Entity)
}

// New returns an empty scene.
func New() *Scene {
	return &Scene{
		entities: make(map[uuid.UUID]*Entity),
	}
}

// Instantiate spawns a fresh entity from t at the identity pose. Like an
// engine spawn, the new entity starts visible; callers that want it
// hidden must hide it.
func (s *Scene) Instantiate(t Template) (*Entity, error) {
	label := strings.TrimSpace(t.Label)
	if label == "" {
		return nil, ErrEmptyLabel
	}

	e := &Entity{
		id:      uuid.New(),
		name:    label,
		asset:   t.Asset,
		visible: true,
		pose:    IdentityPose(),
	}

	s.mu.Lock()
	s.entities[e.id] = e
	s.order = append(s.order, e.id)
	s.mu.Unlock()

	return e, nil
}

// Lookup returns the entity with the given id.
func (s *Scene) Lookup(id uuid.UUID) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// ByName returns the oldest entity carrying name.
func (s *Scene) ByName(name string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if e := s.entities[id]; e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

// OnRemove registers fn to run before an entity leaves the scene.
func (s *Scene) OnRemove(fn func(*Entity)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onRemove = append(s.onRemove, fn)
	s.mu.Unlock()
}

// Remove runs the removal hooks for the entity and then drops it.
func (s *Scene) Remove(id uuid.UUID) error {
	s.mu.RLock()
	e, ok := s.entities[id]
	hooks := append([]func(*Entity){}, s.onRemove...)
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}

	for _, fn := range hooks {
		fn(e)
	}

	s.mu.Lock()
	delete(s.entities, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// Entities returns the live entities in spawn order.
func (s *Scene) Entities() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out
}

func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
