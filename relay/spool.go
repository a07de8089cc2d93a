package relay

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const spoolSchemaVersion = 1

// Spool is the bounded on-disk holding pen for events the master would not
// take. Bounds are rows and age; both shed oldest-first, and every shed
// event counts as a drop.
type Spool struct {
	db        *sqlx.DB
	maxEvents int
	maxAge    time.Duration
	clock     clockwork.Clock
}

// SpooledEvent is one parked event.
type SpooledEvent struct {
	ID       int64  `db:"id"`
	Received int64  `db:"received"`
	Body     []byte `db:"body"`
}

func OpenSpool(path string, maxEvents int, maxAge time.Duration) (*Spool, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	s := &Spool{
		db:        db,
		maxEvents: maxEvents,
		maxAge:    maxAge,
		clock:     clockwork.NewRealClock(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate spool: %w", err)
	}
	return s, nil
}

func (s *Spool) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	dbDriver, err := sqlite3.WithInstance(s.db.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	migrator, err := migrate.NewWithInstance("iofs", src, "spool", dbDriver)
	if err != nil {
		return err
	}
	if err := migrator.Migrate(spoolSchemaVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Spool) Close() error {
	return s.db.Close()
}

// Insert parks one event body. When the row bound is exceeded the oldest
// rows are shed to make room.
func (s *Spool) Insert(body []byte) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO events (received, body) VALUES (?, ?)`,
		s.clock.Now().Unix(), body,
	); err != nil {
		return err
	}

	res, err := tx.Exec(
		`DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY id DESC LIMIT ?)`,
		s.maxEvents,
	)
	if err != nil {
		return err
	}
	if shed, err := res.RowsAffected(); err == nil && shed > 0 {
		eventsDropped.WithLabelValues("spool_full").Add(float64(shed))
	}

	return tx.Commit()
}

// DropExpired sheds events older than the age bound and returns how many
// went.
func (s *Spool) DropExpired() (int64, error) {
	cutoff := s.clock.Now().Add(-s.maxAge).Unix()
	res, err := s.db.Exec(`DELETE FROM events WHERE received < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	shed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if shed > 0 {
		eventsDropped.WithLabelValues("expired").Add(float64(shed))
	}
	return shed, nil
}

// Oldest returns up to n parked events, oldest first.
func (s *Spool) Oldest(n int) ([]SpooledEvent, error) {
	var events []SpooledEvent
	err := s.db.Select(&events, `SELECT id, received, body FROM events ORDER BY id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Delete removes one delivered (or rejected) event.
func (s *Spool) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	return err
}

// Len reports how many events are parked.
func (s *Spool) Len() (int, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM events`); err != nil {
		return 0, err
	}
	return n, nil
}
