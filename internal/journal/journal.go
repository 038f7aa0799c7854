// Package journal persists what the binder and the overlap registry did so
// a session can be inspected after the fact. Writes go to a sqlite file
// whose schema is managed by embedded golang-migrate migrations.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/trackbind/internal/binder"
	"github.com/banshee-data/trackbind/internal/interact"
	"github.com/banshee-data/trackbind/internal/monitoring"
	"github.com/banshee-data/trackbind/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultLimit caps Recent* queries when the caller passes a non-positive
// limit.
const DefaultLimit = 100

type Journal struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock

	writes      atomic.Uint64
	transitions atomic.Uint64
	failures    atomic.Uint64
}

// Open opens (creating if needed) the journal at path and migrates it to
// the latest schema. A nil clock means wall time.
func Open(path string, clock timeutil.Clock) (*Journal, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, clock: clock}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Path is the file the journal was opened from.
func (j *Journal) Path() string { return j.path }

func (j *Journal) migrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version reports the applied schema version and whether the last
// migration left it dirty.
func (j *Journal) Version() (version uint, dirty bool, err error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// RecordWrite stores one binder write. It satisfies binder.Recorder.
func (j *Journal) RecordWrite(w binder.Write) error {
	p, q := w.Pose.Position, w.Pose.Orientation
	_, err := j.db.Exec(`INSERT INTO trackable_writes (
			recorded_ns, label, entity_id, change, state, visible,
			pos_x, pos_y, pos_z, rot_w, rot_x, rot_y, rot_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.clock.Now().UnixNano(), w.Label, w.EntityID.String(), string(w.Change), string(w.State), w.Visible,
		p.X, p.Y, p.Z, q.Real, q.Imag, q.Jmag, q.Kmag,
	)
	if err != nil {
		j.failures.Add(1)
		return fmt.Errorf("record write for %q: %w", w.Label, err)
	}
	j.writes.Add(1)
	return nil
}

// RecordTransition stores a status change. Re-assertions of the current
// status are not transitions and are skipped.
func (j *Journal) RecordTransition(id uuid.UUID, from, to interact.Status) error {
	if from == to {
		return nil
	}
	_, err := j.db.Exec(`INSERT INTO overlap_transitions (recorded_ns, entity_id, from_status, to_status)
		VALUES (?, ?, ?, ?)`,
		j.clock.Now().UnixNano(), id.String(), string(from), string(to),
	)
	if err != nil {
		j.failures.Add(1)
		return fmt.Errorf("record transition for %s: %w", id, err)
	}
	j.transitions.Add(1)
	return nil
}

// OnStatus adapts RecordTransition to interact.StatusFunc. Failures are
// logged; the overlap state machine never waits on the journal.
func (j *Journal) OnStatus(x *interact.Interactable, from, to interact.Status) {
	if err := j.RecordTransition(x.ID(), from, to); err != nil {
		monitoring.Logf("journal: %v", err)
	}
}

// Counters reports how many rows were written and how many inserts failed
// since Open.
type Counters struct {
	Writes      uint64 `json:"writes"`
	Transitions uint64 `json:"transitions"`
	Failures    uint64 `json:"failures"`
}

func (j *Journal) Counters() Counters {
	return Counters{
		Writes:      j.writes.Load(),
		Transitions: j.transitions.Load(),
		Failures:    j.failures.Load(),
	}
}
