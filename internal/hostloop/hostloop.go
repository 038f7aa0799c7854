// Package hostloop is the single goroutine that owns scene mutation. It
// decodes sensor-link lines and dispatches them to the tracking feed, the
// overlap registry, or the scene.
package hostloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackbind/internal/binder"
	"github.com/banshee-data/trackbind/internal/interact"
	"github.com/banshee-data/trackbind/internal/monitoring"
	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/timeutil"
	"github.com/banshee-data/trackbind/internal/tracking"
)

var (
	ErrUnknownMessage = errors.New("unrecognised message")
	ErrUnknownEntity  = errors.New("no entity with that name or id")
)

// Overlap edges on the wire.
const (
	OverlapBegin = "begin"
	OverlapEnd   = "end"
)

type Config struct {
	Feed     *tracking.Feed
	Registry *interact.Registry
	Scene    *scene.Scene
	// Binder is only read for the status line; it may be nil.
	Binder *binder.Binder

	Clock          timeutil.Clock
	StatusInterval time.Duration
}

type Loop struct {
	cfg Config

	handled  atomic.Uint64
	rejected atomic.Uint64
}

// New builds a loop and ties entity removal to overlap teardown: an entity
// leaving the scene is removed from the registry first, which ends every
// overlap it takes part in.
func New(cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	reg := cfg.Registry
	cfg.Scene.OnRemove(func(e *scene.Entity) { reg.Remove(e.ID()) })
	return &Loop{cfg: cfg}
}

// RegisterBound makes every entity the binder owns an interactable and
// returns how many were registered.
func (l *Loop) RegisterBound() int {
	if l.cfg.Binder == nil {
		return 0
	}
	n := 0
	for _, label := range l.cfg.Binder.Labels() {
		if e, ok := l.cfg.Binder.Entity(label); ok {
			l.cfg.Registry.Register(e.ID())
			n++
		}
	}
	return n
}

// Run handles lines until ctx is cancelled or lines is closed. A line that
// fails to decode or dispatch is logged and skipped.
func (l *Loop) Run(ctx context.Context, lines <-chan string) error {
	var tick <-chan time.Time
	if l.cfg.StatusInterval > 0 {
		ticker := l.cfg.Clock.NewTicker(l.cfg.StatusInterval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := l.Handle(line); err != nil {
				monitoring.Logf("hostloop: %v", err)
			}
		case <-tick:
			monitoring.Logf("hostloop: %s", l.Status())
		}
	}
}

// envelope carries every key a line may use; which keys are present
// decides the message kind.
type envelope struct {
	Added   json.RawMessage `json:"added"`
	Updated json.RawMessage `json:"updated"`
	Removed json.RawMessage `json:"removed"`

	Overlap string `json:"overlap"`
	A       string `json:"a"`
	B       string `json:"b"`

	Despawn string `json:"despawn"`
}

// Handle decodes and dispatches one line.
func (l *Loop) Handle(line string) error {
	err := l.handle([]byte(line))
	if err != nil {
		l.rejected.Add(1)
		return err
	}
	l.handled.Add(1)
	return nil
}

func (l *Loop) handle(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", tracking.ErrMalformed, err)
	}

	switch {
	case env.Overlap != "":
		return l.overlap(env.Overlap, env.A, env.B)
	case env.Despawn != "":
		return l.despawn(env.Despawn)
	case env.Added != nil || env.Updated != nil || env.Removed != nil:
		batch, err := tracking.DecodeBatch(data)
		if err != nil {
			return err
		}
		l.cfg.Feed.Publish(batch)
		return nil
	default:
		return ErrUnknownMessage
	}
}

// resolve accepts an entity id or an entity name.
func (l *Loop) resolve(ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if _, ok := l.cfg.Scene.Lookup(id); ok {
			return id, nil
		}
	}
	if e, ok := l.cfg.Scene.ByName(ref); ok {
		return e.ID(), nil
	}
	return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownEntity, ref)
}

func (l *Loop) overlap(edge, a, b string) error {
	ida, err := l.resolve(a)
	if err != nil {
		return err
	}
	idb, err := l.resolve(b)
	if err != nil {
		return err
	}

	switch edge {
	case OverlapBegin:
		l.cfg.Registry.Begin(ida, idb)
	case OverlapEnd:
		l.cfg.Registry.End(ida, idb)
	default:
		return fmt.Errorf("%w: overlap edge %q", ErrUnknownMessage, edge)
	}
	return nil
}

func (l *Loop) despawn(ref string) error {
	id, err := l.resolve(ref)
	if err != nil {
		return err
	}
	return l.cfg.Scene.Remove(id)
}

// Stats counts dispatched and rejected lines.
type Stats struct {
	Handled  uint64 `json:"handled"`
	Rejected uint64 `json:"rejected"`
}

func (l *Loop) Stats() Stats {
	return Stats{Handled: l.handled.Load(), Rejected: l.rejected.Load()}
}

// Status summarises the scene for the periodic log line.
func (l *Loop) Status() string {
	visible, bound := 0, 0
	if l.cfg.Binder != nil {
		for _, b := range l.cfg.Binder.Snapshot() {
			bound++
			if b.Visible {
				visible++
			}
		}
	}
	active := 0
	for _, e := range l.cfg.Registry.Snapshot() {
		if e.Status == interact.StatusActive {
			active++
		}
	}
	s := l.Stats()
	return fmt.Sprintf("%d/%d bound visible, %d active interactables, %d entities, %d lines handled (%d rejected)",
		visible, bound, active, l.cfg.Scene.Len(), s.Handled, s.Rejected)
}
