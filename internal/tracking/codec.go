package tracking

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/trackbind/internal/scene"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrMalformed is returned for wire records that cannot be decoded.
var ErrMalformed = errors.New("malformed trackables batch")

// WireTrackable is the JSON form of a trackable on the sensor link.
// Orientation is ordered w, x, y, z.
type WireTrackable struct {
	Label       string    `json:"label"`
	State       State     `json:"state"`
	Position    []float64 `json:"position,omitempty"`
	Orientation []float64 `json:"orientation,omitempty"`
}

// WireBatch is one line on the sensor link.
type WireBatch struct {
	Added   []WireTrackable `json:"added,omitempty"`
	Updated []WireTrackable `json:"updated,omitempty"`
	Removed []WireTrackable `json:"removed,omitempty"`
}

// DecodeBatch parses one JSON line into a Batch.
func DecodeBatch(data []byte) (Batch, error) {
	var w WireBatch
	if err := json.Unmarshal(data, &w); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.Batch()
}

// Batch converts the wire form, validating every record.
func (w WireBatch) Batch() (Batch, error) {
	var (
		b   Batch
		err error
	)
	if b.Added, err = fromWire(ChangeAdded, w.Added); err != nil {
		return Batch{}, err
	}
	if b.Updated, err = fromWire(ChangeUpdated, w.Updated); err != nil {
		return Batch{}, err
	}
	if b.Removed, err = fromWire(ChangeRemoved, w.Removed); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func fromWire(c Change, in []WireTrackable) ([]Trackable, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]Trackable, 0, len(in))
	for i, wt := range in {
		t, err := wt.Trackable()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", c, i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Trackable validates and converts a single wire record. A missing position
// is the origin and a missing orientation is the identity rotation.
func (wt WireTrackable) Trackable() (Trackable, error) {
	if wt.Label == "" {
		return Trackable{}, fmt.Errorf("%w: missing label", ErrMalformed)
	}
	if !wt.State.Valid() {
		return Trackable{}, fmt.Errorf("%w: %s: unknown state %q", ErrMalformed, wt.Label, wt.State)
	}

	pose := scene.IdentityPose()
	switch len(wt.Position) {
	case 0:
	case 3:
		pose.Position = r3.Vec{X: wt.Position[0], Y: wt.Position[1], Z: wt.Position[2]}
	default:
		return Trackable{}, fmt.Errorf("%w: %s: position needs 3 components, got %d", ErrMalformed, wt.Label, len(wt.Position))
	}
	switch len(wt.Orientation) {
	case 0:
	case 4:
		pose.Orientation = scene.NormalizeOrientation(quat.Number{
			Real: wt.Orientation[0],
			Imag: wt.Orientation[1],
			Jmag: wt.Orientation[2],
			Kmag: wt.Orientation[3],
		})
	default:
		return Trackable{}, fmt.Errorf("%w: %s: orientation needs 4 components, got %d", ErrMalformed, wt.Label, len(wt.Orientation))
	}

	return Trackable{Label: wt.Label, State: wt.State, Pose: pose}, nil
}

// ToWire converts a trackable to its JSON form.
func ToWire(t Trackable) WireTrackable {
	p, q := t.Pose.Position, t.Pose.Orientation
	return WireTrackable{
		Label:       t.Label,
		State:       t.State,
		Position:    []float64{p.X, p.Y, p.Z},
		Orientation: []float64{q.Real, q.Imag, q.Jmag, q.Kmag},
	}
}

// EncodeBatch renders b as a single JSON line (without trailing newline).
func EncodeBatch(b Batch) ([]byte, error) {
	var w WireBatch
	for _, t := range b.Added {
		w.Added = append(w.Added, ToWire(t))
	}
	for _, t := range b.Updated {
		w.Updated = append(w.Updated, ToWire(t))
	}
	for _, t := range b.Removed {
		w.Removed = append(w.Removed, ToWire(t))
	}
	return json.Marshal(w)
}
