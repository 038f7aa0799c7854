package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trackbind/internal/interact"
	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/tracking"
)

type WriteEntry struct {
	ID       int64           `json:"id"`
	Recorded time.Time       `json:"recorded"`
	Label    string          `json:"label"`
	EntityID uuid.UUID       `json:"entity_id"`
	Change   tracking.Change `json:"change"`
	State    tracking.State  `json:"state"`
	Visible  bool            `json:"visible"`
	Pose     scene.Pose      `json:"pose"`
}

type TransitionEntry struct {
	ID       int64           `json:"id"`
	Recorded time.Time       `json:"recorded"`
	EntityID uuid.UUID       `json:"entity_id"`
	From     interact.Status `json:"from"`
	To       interact.Status `json:"to"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// RecentWrites returns up to limit binder writes, newest first.
func (j *Journal) RecentWrites(limit int) ([]WriteEntry, error) {
	rows, err := j.db.Query(`SELECT write_id, recorded_ns, label, entity_id, change, state, visible,
			pos_x, pos_y, pos_z, rot_w, rot_x, rot_y, rot_z
		FROM trackable_writes ORDER BY write_id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WriteEntry
	for rows.Next() {
		var (
			e                    WriteEntry
			ns                   int64
			entityID, change, st string
			px, py, pz           float64
			qw, qx, qy, qz       float64
		)
		if err := rows.Scan(&e.ID, &ns, &e.Label, &entityID, &change, &st, &e.Visible,
			&px, &py, &pz, &qw, &qx, &qy, &qz); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(entityID)
		if err != nil {
			return nil, fmt.Errorf("write %d: bad entity id: %w", e.ID, err)
		}
		e.Recorded = time.Unix(0, ns).UTC()
		e.EntityID = id
		e.Change = tracking.Change(change)
		e.State = tracking.State(st)
		e.Pose = scene.Pose{
			Position:    r3.Vec{X: px, Y: py, Z: pz},
			Orientation: quat.Number{Real: qw, Imag: qx, Jmag: qy, Kmag: qz},
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentTransitions returns up to limit status transitions, newest first.
func (j *Journal) RecentTransitions(limit int) ([]TransitionEntry, error) {
	rows, err := j.db.Query(`SELECT transition_id, recorded_ns, entity_id, from_status, to_status
		FROM overlap_transitions ORDER BY transition_id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionEntry
	for rows.Next() {
		var (
			e        TransitionEntry
			ns       int64
			entityID string
			from, to string
		)
		if err := rows.Scan(&e.ID, &ns, &entityID, &from, &to); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(entityID)
		if err != nil {
			return nil, fmt.Errorf("transition %d: bad entity id: %w", e.ID, err)
		}
		e.Recorded = time.Unix(0, ns).UTC()
		e.EntityID = id
		e.From = interact.Status(from)
		e.To = interact.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}
