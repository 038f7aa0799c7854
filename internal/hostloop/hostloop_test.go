package hostloop

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trackbind/internal/binder"
	"github.com/banshee-data/trackbind/internal/interact"
	"github.com/banshee-data/trackbind/internal/monitoring"
	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/timeutil"
	"github.com/banshee-data/trackbind/internal/tracking"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type rig struct {
	loop     *Loop
	scene    *scene.Scene
	binder   *binder.Binder
	registry *interact.Registry
	clock    *timeutil.MockClock
}

func newRig(t *testing.T, labels ...string) *rig {
	t.Helper()
	feed := tracking.NewFeed()
	sc := scene.New()
	var templates []scene.Template
	for _, l := range labels {
		templates = append(templates, scene.Template{Label: l, Asset: "models/" + l + ".glb"})
	}
	b := binder.New(binder.Config{
		Source:       feed,
		Instantiator: binder.FromScene(sc),
		Templates:    templates,
	})
	require.NoError(t, b.Setup())
	t.Cleanup(b.Close)

	reg := interact.NewRegistry(nil)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loop := New(Config{
		Feed:           feed,
		Registry:       reg,
		Scene:          sc,
		Binder:         b,
		Clock:          clock,
		StatusInterval: time.Minute,
	})
	require.Equal(t, len(labels), loop.RegisterBound())
	return &rig{loop: loop, scene: sc, binder: b, registry: reg, clock: clock}
}

func (r *rig) entity(t *testing.T, label string) binder.Entity {
	t.Helper()
	e, ok := r.binder.Entity(label)
	require.True(t, ok, label)
	return e
}

func (r *rig) interactable(t *testing.T, label string) *interact.Interactable {
	t.Helper()
	x, ok := r.registry.Get(r.entity(t, label).ID())
	require.True(t, ok, label)
	return x
}

func TestBatchLinesReachBinder(t *testing.T) {
	t.Parallel()
	r := newRig(t, "cat", "dog")

	require.NoError(t, r.loop.Handle(`{"added":[{"label":"cat","state":"tracking","position":[1,2,3]}]}`))
	cat := r.entity(t, "cat")
	assert.True(t, cat.Visible())
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, cat.Pose().Position)

	require.NoError(t, r.loop.Handle(`{"updated":[{"label":"cat","state":"limited"}]}`))
	assert.False(t, cat.Visible())
	assert.False(t, r.entity(t, "dog").Visible())
}

func TestOverlapLines(t *testing.T) {
	t.Parallel()
	r := newRig(t, "cat", "dog")
	cat, dog := r.interactable(t, "cat"), r.interactable(t, "dog")

	require.NoError(t, r.loop.Handle(`{"overlap":"begin","a":"cat","b":"dog"}`))
	assert.True(t, cat.IsActive())
	assert.True(t, dog.IsActive())

	// ids resolve as well as names
	line := `{"overlap":"end","a":"` + dog.ID().String() + `","b":"cat"}`
	require.NoError(t, r.loop.Handle(line))
	assert.True(t, cat.IsIdle())
	assert.True(t, dog.IsIdle())

	err := r.loop.Handle(`{"overlap":"sideways","a":"cat","b":"dog"}`)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	err = r.loop.Handle(`{"overlap":"begin","a":"cat","b":"ghost"}`)
	assert.ErrorIs(t, err, ErrUnknownEntity)
	assert.True(t, cat.IsIdle())
}

func TestDespawnTearsDownOverlaps(t *testing.T) {
	t.Parallel()
	r := newRig(t, "cat", "dog", "bird")
	dog, bird := r.interactable(t, "dog"), r.interactable(t, "bird")
	catID := r.entity(t, "cat").ID()

	require.NoError(t, r.loop.Handle(`{"overlap":"begin","a":"cat","b":"dog"}`))
	require.NoError(t, r.loop.Handle(`{"overlap":"begin","a":"bird","b":"cat"}`))

	require.NoError(t, r.loop.Handle(`{"despawn":"cat"}`))
	assert.True(t, dog.IsIdle())
	assert.True(t, bird.IsIdle())
	_, ok := r.registry.Get(catID)
	assert.False(t, ok)
	_, ok = r.scene.Lookup(catID)
	assert.False(t, ok)
	assert.Equal(t, 2, r.scene.Len())

	assert.ErrorIs(t, r.loop.Handle(`{"despawn":"cat"}`), ErrUnknownEntity)
}

func TestRejectedLines(t *testing.T) {
	t.Parallel()
	r := newRig(t, "cat")

	tests := []struct {
		name string
		line string
		want error
	}{
		{"not json", `cat at 1,2,3`, tracking.ErrMalformed},
		{"unknown shape", `{"hello":"world"}`, ErrUnknownMessage},
		{"bad state", `{"added":[{"label":"cat","state":"lost"}]}`, tracking.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.loop.Handle(tt.line), tt.want)
		})
	}
	assert.Equal(t, Stats{Handled: 0, Rejected: uint64(len(tests))}, r.loop.Stats())
}

func TestRunConsumesUntilClosed(t *testing.T) {
	t.Parallel()
	r := newRig(t, "cat")

	lines := make(chan string, 3)
	lines <- `{"added":[{"label":"cat","state":"tracking"}]}`
	lines <- `garbage`
	lines <- `{"overlap":"begin","a":"cat","b":"cat"}`
	close(lines)

	require.NoError(t, r.loop.Run(context.Background(), lines))
	assert.True(t, r.entity(t, "cat").Visible())
	assert.Equal(t, Stats{Handled: 2, Rejected: 1}, r.loop.Stats())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.loop.Run(ctx, make(chan string)), context.Canceled)
}

func TestRunLogsStatus(t *testing.T) {
	capture := &monitoring.Capture{}
	monitoring.SetLogger(capture.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	r := newRig(t, "cat", "dog")
	require.NoError(t, r.loop.Handle(`{"added":[{"label":"dog","state":"tracking"}]}`))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.loop.Run(ctx, make(chan string)) }()

	require.Eventually(t, func() bool {
		r.clock.Advance(time.Minute)
		for _, line := range capture.Lines() {
			if strings.Contains(line, "1/2 bound visible") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStatusWithoutBinder(t *testing.T) {
	t.Parallel()
	sc := scene.New()
	reg := interact.NewRegistry(nil)
	loop := New(Config{Feed: tracking.NewFeed(), Registry: reg, Scene: sc})
	assert.Equal(t, 0, loop.RegisterBound())

	reg.Register(uuid.New())
	assert.Equal(t, "0/0 bound visible, 0 active interactables, 0 entities, 0 lines handled (0 rejected)", loop.Status())
}
