package interact

import (
	"math/rand"
	"os"
	"testing"

	"github.com/banshee-data/trackbind/internal/monitoring"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type transition struct {
	id       uuid.UUID
	from, to Status
}

func newTrio() (a, b, c *Interactable) {
	return New(uuid.New()), New(uuid.New()), New(uuid.New())
}

func assertSymmetric(t *testing.T, xs []*Interactable) {
	t.Helper()
	for _, a := range xs {
		for _, b := range xs {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "asymmetric membership %s/%s", a.ID(), b.ID())
		}
	}
}

func assertDerived(t *testing.T, xs []*Interactable) {
	t.Helper()
	for _, x := range xs {
		assert.Equal(t, x.Len() > 0, x.IsActive(), x.ID())
		assert.Equal(t, x.Len() == 0, x.IsIdle(), x.ID())
	}
}

func TestNewIsIdle(t *testing.T) {
	t.Parallel()
	x := New(uuid.New())
	assert.Equal(t, StatusIdle, x.Status())
	assert.True(t, x.IsIdle())
	assert.Empty(t, x.Peers())
}

func TestBeginOverlap(t *testing.T) {
	t.Parallel()

	t.Run("activates both sides", func(t *testing.T) {
		t.Parallel()
		a, b, _ := newTrio()
		a.BeginOverlap(b)

		assert.True(t, a.IsActive())
		assert.True(t, b.IsActive())
		assert.True(t, a.Overlaps(b))
		assert.True(t, b.Overlaps(a))
	})

	t.Run("repeat is idempotent and re-asserts active", func(t *testing.T) {
		t.Parallel()
		a, b, _ := newTrio()
		var got []transition
		a.OnStatus(func(x *Interactable, from, to Status) { got = append(got, transition{x.ID(), from, to}) })

		a.BeginOverlap(b)
		a.BeginOverlap(b)
		b.BeginOverlap(a)

		assert.Equal(t, 1, a.Len())
		assert.Equal(t, 1, b.Len())
		assert.Equal(t, []transition{
			{a.ID(), StatusIdle, StatusActive},
			{a.ID(), StatusActive, StatusActive},
		}, got)
	})

	t.Run("self and nil are ignored", func(t *testing.T) {
		t.Parallel()
		a, _, _ := newTrio()
		a.BeginOverlap(a)
		a.BeginOverlap(nil)
		a.EndOverlap(nil)
		assert.True(t, a.IsIdle())
	})
}

func TestEndOverlap(t *testing.T) {
	t.Parallel()

	t.Run("stays active while peers remain", func(t *testing.T) {
		t.Parallel()
		a, b, c := newTrio()
		a.BeginOverlap(b)
		a.BeginOverlap(c)

		a.EndOverlap(b)
		assert.True(t, a.IsActive())
		assert.True(t, b.IsIdle())
		assert.True(t, c.IsActive())

		c.EndOverlap(a)
		assert.True(t, a.IsIdle())
		assert.True(t, c.IsIdle())
	})

	t.Run("absent peer is a safe no-op", func(t *testing.T) {
		t.Parallel()
		a, b, c := newTrio()
		a.BeginOverlap(b)
		a.EndOverlap(c)
		assert.True(t, a.IsActive())
		assert.True(t, c.IsIdle())
		assertSymmetric(t, []*Interactable{a, b, c})
	})
}

func TestTeardownCascade(t *testing.T) {
	t.Parallel()
	a, b, c := newTrio()
	var got []transition
	hook := func(x *Interactable, from, to Status) { got = append(got, transition{x.ID(), from, to}) }
	for _, x := range []*Interactable{a, b, c} {
		x.OnStatus(hook)
	}

	a.BeginOverlap(b)
	a.BeginOverlap(c)
	got = nil

	a.Teardown()

	assert.True(t, b.IsIdle())
	assert.True(t, c.IsIdle())
	assert.True(t, a.IsIdle())
	assert.Equal(t, 0, a.Len())
	assert.False(t, b.Overlaps(a))
	assert.False(t, c.Overlaps(a))

	// The teardown itself re-asserts idle on a once it is already empty.
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, transition{a.ID(), StatusIdle, StatusIdle}, last)
	idle := 0
	for _, tr := range got {
		if tr.to == StatusIdle && tr.from == StatusActive {
			idle++
		}
	}
	assert.Equal(t, 3, idle, "each of a, b, c goes active->idle exactly once")
}

func TestTeardownKeepsOtherOverlaps(t *testing.T) {
	t.Parallel()
	a, b, c := newTrio()
	a.BeginOverlap(b)
	b.BeginOverlap(c)

	a.Teardown()

	assert.True(t, b.IsActive(), "b still overlaps c")
	assert.True(t, b.Overlaps(c))
	assert.True(t, a.IsIdle())
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	xs := make([]*Interactable, 6)
	for i := range xs {
		xs[i] = New(uuid.New())
	}

	for step := 0; step < 2000; step++ {
		a := xs[rng.Intn(len(xs))]
		b := xs[rng.Intn(len(xs))]
		switch rng.Intn(5) {
		case 0, 1:
			a.BeginOverlap(b)
		case 2, 3:
			a.EndOverlap(b)
		case 4:
			a.Teardown()
		}
		assertSymmetric(t, xs)
		assertDerived(t, xs)
		if t.Failed() {
			t.Fatalf("invariant broken at step %d", step)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("delivers to both participants", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry(nil)
		a, b := uuid.New(), uuid.New()
		xa, xb := r.Register(a), r.Register(b)
		assert.Same(t, xa, r.Register(a))

		assert.True(t, r.Begin(a, b))
		assert.True(t, xa.IsActive())
		assert.True(t, xb.IsActive())

		assert.True(t, r.End(b, a))
		assert.True(t, xa.IsIdle())
		assert.True(t, xb.IsIdle())
	})

	t.Run("ignores unregistered and self overlaps", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry(nil)
		a := uuid.New()
		xa := r.Register(a)

		assert.False(t, r.Begin(a, uuid.New()))
		assert.False(t, r.Begin(a, a))
		assert.False(t, r.End(uuid.New(), a))
		assert.True(t, xa.IsIdle())
	})

	t.Run("remove tears down and forgets", func(t *testing.T) {
		t.Parallel()
		var transitions []transition
		r := NewRegistry(func(x *Interactable, from, to Status) {
			if from != to {
				transitions = append(transitions, transition{x.ID(), from, to})
			}
		})
		a, b, c := uuid.New(), uuid.New(), uuid.New()
		r.Register(a)
		xb, xc := r.Register(b), r.Register(c)
		r.Begin(a, b)
		r.Begin(c, a)

		assert.True(t, r.Remove(a))
		assert.False(t, r.Remove(a))
		_, ok := r.Get(a)
		assert.False(t, ok)
		assert.Equal(t, 2, r.Len())
		assert.True(t, xb.IsIdle())
		assert.True(t, xc.IsIdle())
		assert.Len(t, transitions, 6, "three activations then three releases")

		assert.False(t, r.Begin(a, b), "removed ids are no longer interactable")
	})

	t.Run("snapshot", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry(nil)
		a, b, c := uuid.New(), uuid.New(), uuid.New()
		r.Register(a)
		r.Register(b)
		r.Register(c)
		r.Begin(a, b)

		snap := r.Snapshot()
		require.Len(t, snap, 3)
		byID := make(map[uuid.UUID]Entry)
		for _, e := range snap {
			byID[e.ID] = e
		}
		assert.Equal(t, StatusActive, byID[a].Status)
		assert.Equal(t, []uuid.UUID{b}, byID[a].Peers)
		assert.Equal(t, StatusIdle, byID[c].Status)
		assert.Empty(t, byID[c].Peers)
	})
}
