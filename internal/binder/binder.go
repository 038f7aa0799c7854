package binder

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/trackbind/internal/monitoring"
	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/tracking"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNoSource means setup ran without a tracking event source.
	ErrNoSource = errors.New("no tracking event source")
	// ErrNoInstantiator means setup ran without an entity instantiator.
	ErrNoInstantiator = errors.New("no entity instantiator")
	// ErrDuplicateLabel means two templates share a label.
	ErrDuplicateLabel = errors.New("duplicate template label")
	// ErrSharedEntity means the instantiator returned one entity for two labels.
	ErrSharedEntity = errors.New("entity bound to more than one label")
	// ErrUnknownLabel means a live trackable has no bound entity.
	ErrUnknownLabel = errors.New("trackable label not registered")
	// ErrAlreadySetup is returned by a second Setup call.
	ErrAlreadySetup = errors.New("binder already set up")
)

// Entity is the subset of a scene entity the binder drives.
type Entity interface {
	ID() uuid.UUID
	SetName(name string)
	Show()
	Hide()
	Visible() bool
	SetPosition(p r3.Vec)
	SetOrientation(q quat.Number)
	Pose() scene.Pose
}

// Instantiator spawns one independent entity per template.
type Instantiator interface {
	Instantiate(t scene.Template) (Entity, error)
}

// InstantiatorFunc adapts a function to Instantiator.
type InstantiatorFunc func(t scene.Template) (Entity, error)

func (f InstantiatorFunc) Instantiate(t scene.Template) (Entity, error) { return f(t) }

// FromScene spawns bound entities into s.
func FromScene(s *scene.Scene) Instantiator {
	return InstantiatorFunc(func(t scene.Template) (Entity, error) {
		e, err := s.Instantiate(t)
		if err != nil {
			return nil, err
		}
		return e, nil
	})
}

// Write describes one visibility/pose write made by the binder.
type Write struct {
	Label    string
	EntityID uuid.UUID
	Change   tracking.Change
	State    tracking.State
	Visible  bool
	Pose     scene.Pose
}

// Recorder observes binder writes, typically to journal them.
type Recorder interface {
	RecordWrite(w Write) error
}

// UnknownLabelError reports a live trackable whose label was never
// registered at setup.
type UnknownLabelError struct {
	Label  string
	Change tracking.Change
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("%s trackable %q: %v", e.Change, e.Label, ErrUnknownLabel)
}

func (e *UnknownLabelError) Unwrap() error { return ErrUnknownLabel }

// Config wires a Binder to its collaborators.
type Config struct {
	Source       tracking.Source
	Instantiator Instantiator
	Templates    []scene.Template
	Recorder     Recorder // optional
}

// Binder keeps a fixed pool of entities in step with the trackables that
// share their labels. All methods except Snapshot must be called from the
// host loop goroutine.
type Binder struct {
	cfg      Config
	entities map[string]Entity
	labels   []string
	subID    string
	ready    bool
	closed   bool
	reported map[string]struct{}
}

// New returns a binder that does nothing until Setup succeeds.
func New(cfg Config) *Binder {
	return &Binder{
		cfg:      cfg,
		entities: make(map[string]Entity),
		reported: make(map[string]struct{}),
	}
}

// Setup spawns one hidden entity per template and subscribes to the
// tracking source. On error the binder stays inert: nothing is subscribed
// and Apply does nothing.
func (b *Binder) Setup() error {
	if err := b.setup(); err != nil {
		monitoring.Logf("binder: setup failed, binder inert: %v", err)
		return err
	}
	monitoring.Logf("binder: bound %d trackable labels: %s", len(b.labels), strings.Join(b.labels, ", "))
	return nil
}

func (b *Binder) setup() error {
	if b.ready || b.closed {
		return ErrAlreadySetup
	}
	if b.cfg.Source == nil {
		return ErrNoSource
	}
	if b.cfg.Instantiator == nil {
		return ErrNoInstantiator
	}

	seen := make(map[string]struct{}, len(b.cfg.Templates))
	for i, t := range b.cfg.Templates {
		if strings.TrimSpace(t.Label) == "" {
			return fmt.Errorf("template %d: %w", i, scene.ErrEmptyLabel)
		}
		if _, dup := seen[t.Label]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, t.Label)
		}
		seen[t.Label] = struct{}{}
	}

	entities := make(map[string]Entity, len(b.cfg.Templates))
	owners := make(map[uuid.UUID]string, len(b.cfg.Templates))
	for _, t := range b.cfg.Templates {
		e, err := b.cfg.Instantiator.Instantiate(t)
		if err != nil {
			return fmt.Errorf("instantiate %q: %w", t.Label, err)
		}
		if owner, taken := owners[e.ID()]; taken {
			return fmt.Errorf("%w: %s used by %q and %q", ErrSharedEntity, e.ID(), owner, t.Label)
		}
		e.SetName(t.Label)
		e.Hide()
		entities[t.Label] = e
		owners[e.ID()] = t.Label
	}

	b.entities = entities
	b.labels = make([]string, 0, len(entities))
	for label := range entities {
		b.labels = append(b.labels, label)
	}
	sort.Strings(b.labels)

	b.subID = b.cfg.Source.Subscribe(b.onBatch)
	b.ready = true
	return nil
}

// Inert reports whether the binder is not processing events.
func (b *Binder) Inert() bool { return !b.ready || b.closed }

// Close unsubscribes from the tracking source. Bound entities are left as
// they are. Close is idempotent.
func (b *Binder) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.ready {
		b.cfg.Source.Unsubscribe(b.subID)
		monitoring.Logf("binder: unsubscribed from tracking source")
	}
}

// onBatch is the subscription handler. Errors are logged, never returned
// into the source's dispatch.
func (b *Binder) onBatch(batch tracking.Batch) {
	for _, err := range b.apply(batch) {
		var unknown *UnknownLabelError
		if errors.As(err, &unknown) {
			if _, done := b.reported[unknown.Label]; done {
				continue
			}
			b.reported[unknown.Label] = struct{}{}
		}
		monitoring.Logf("binder: %v", err)
	}
}

// Apply processes a batch: added, then updated, then removed records, each
// through the same update routine. A failing record does not stop the
// rest of the batch; all failures are returned joined.
func (b *Binder) Apply(batch tracking.Batch) error {
	return errors.Join(b.apply(batch)...)
}

func (b *Binder) apply(batch tracking.Batch) []error {
	if b.Inert() {
		return nil
	}
	var errs []error
	for _, rec := range batch.Records() {
		if err := b.update(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// update mirrors one trackable onto its bound entity. Removed records go
// through here too: removal hides but keeps the binding so the label can
// be reacquired.
func (b *Binder) update(rec tracking.Record) error {
	t := rec.Trackable
	e, ok := b.entities[t.Label]

	if !t.State.Live() {
		if ok {
			e.Hide()
			b.record(rec, e)
		}
		return nil
	}

	if !ok {
		return &UnknownLabelError{Label: t.Label, Change: rec.Change}
	}
	e.Show()
	e.SetPosition(t.Pose.Position)
	e.SetOrientation(t.Pose.Orientation)
	b.record(rec, e)
	return nil
}

func (b *Binder) record(rec tracking.Record, e Entity) {
	if b.cfg.Recorder == nil {
		return
	}
	w := Write{
		Label:    rec.Trackable.Label,
		EntityID: e.ID(),
		Change:   rec.Change,
		State:    rec.Trackable.State,
		Visible:  e.Visible(),
		Pose:     e.Pose(),
	}
	if err := b.cfg.Recorder.RecordWrite(w); err != nil {
		monitoring.Logf("binder: record write for %q: %v", w.Label, err)
	}
}

// Labels returns the bound labels in sorted order.
func (b *Binder) Labels() []string {
	return append([]string(nil), b.labels...)
}

// Entity returns the entity bound to label.
func (b *Binder) Entity(label string) (Entity, bool) {
	e, ok := b.entities[label]
	return e, ok
}

// Binding is a point-in-time view of one bound entity.
type Binding struct {
	Label    string     `json:"label"`
	EntityID uuid.UUID  `json:"entity_id"`
	Visible  bool       `json:"visible"`
	Pose     scene.Pose `json:"pose"`
}

// Snapshot returns every binding sorted by label. The binding map is
// fixed after Setup, so Snapshot may be called from any goroutine once
// Setup has returned.
func (b *Binder) Snapshot() []Binding {
	out := make([]Binding, 0, len(b.labels))
	for _, label := range b.labels {
		e := b.entities[label]
		out = append(out, Binding{
			Label:    label,
			EntityID: e.ID(),
			Visible:  e.Visible(),
			Pose:     e.Pose(),
		})
	}
	return out
}
