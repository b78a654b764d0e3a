/*
Package sqlite provides a SQLite-backed event.Backend.

PURPOSE:
  Durable medium for the event store. Rows survive restarts; the schema is
  created on Open. The store above keeps the authoritative in-memory view,
  so this package only needs full loads and single-row writes.

KEY TABLES:
  events: One row per live record. Deleted records are removed.

INDEXES:
  - idx_events_date:         LoadAll ordering, range lookups from the CLI
  - idx_events_day:          Day bucketing
  - idx_events_start_time,
    idx_events_end_time,
    idx_events_duration,
    idx_events_title,
    idx_events_description:  Field lookups (search endpoint, ad-hoc SQL)
  - idx_events_unique_slot:  Partial UNIQUE (day, start_time) over fixed
                             rows. Enforces at most one fixed event per
                             start slot per day even against writers that
                             bypass the store.

WAL MODE:
  Opened with WAL and a busy timeout so the backup job can read while the
  writer commits.

CONNECTIONS:
  The pool is capped at one connection. Writes are serialized by the store
  anyway, and ":memory:" databases are per-connection.

USAGE:
  db := sqlite.New("./data/events.db")
  if err := db.Open(ctx); err != nil {
      return err
  }
  defer db.Close()
  st := schedule.NewStore(db, schedule.Options{})

SEE ALSO:
  - event/backend.go: Interface definition and row format
  - event/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/calendar-engine/event"
)

// Store implements event.Backend using SQLite.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// New returns a backend for the database at dbPath. Nothing is opened until
// Open is called. Use ":memory:" for an in-memory database.
func New(dbPath string) *Store {
	return &Store{path: dbPath}
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Open connects, applies pragmas and migrates the schema. Calling Open on an
// already open store is a no-op; after a failure it may be retried.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("database not open")
	}
	return s.db, nil
}

// migrate creates the database schema.
func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		date TEXT NOT NULL,
		day TEXT NOT NULL,
		duration TEXT NOT NULL CHECK (duration IN ('fixed', 'day')),
		start_time TEXT,
		end_time TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
	CREATE INDEX IF NOT EXISTS idx_events_day ON events(day);
	CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);
	CREATE INDEX IF NOT EXISTS idx_events_end_time ON events(end_time);
	CREATE INDEX IF NOT EXISTS idx_events_duration ON events(duration);
	CREATE INDEX IF NOT EXISTS idx_events_title ON events(title);
	CREATE INDEX IF NOT EXISTS idx_events_description ON events(description);

	-- At most one fixed event per start slot per day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_unique_slot
		ON events(day, start_time)
		WHERE duration = 'fixed';
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

// LoadAll returns every row ordered by date, then id.
func (s *Store) LoadAll(ctx context.Context) ([]event.Row, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, date, day, duration, start_time, end_time, description
		FROM events
		ORDER BY date ASC, id ASC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []event.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

func scanRow(rows *sql.Rows) (event.Row, error) {
	var (
		row       event.Row
		startTime sql.NullString
		endTime   sql.NullString
	)
	err := rows.Scan(&row.ID, &row.Title, &row.Date, &row.Day, &row.Duration,
		&startTime, &endTime, &row.Description)
	if err != nil {
		return event.Row{}, fmt.Errorf("failed to scan event: %w", err)
	}
	row.StartTime = startTime.String
	row.EndTime = endTime.String
	return row, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Insert stores a new row. A taken fixed slot yields *event.SlotConflictError.
func (s *Store) Insert(ctx context.Context, row event.Row) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO events
		(id, title, date, day, duration, start_time, end_time, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		row.ID,
		row.Title,
		row.Date,
		row.Day,
		row.Duration,
		nullString(row.StartTime),
		nullString(row.EndTime),
		row.Description,
		now,
		now,
	)
	if err != nil {
		if isSlotUniquenessError(err) {
			return s.slotConflict(ctx, db, row)
		}
		return fmt.Errorf("failed to insert event %d: %w", row.ID, err)
	}
	return nil
}

// Replace overwrites the row with the same ID.
func (s *Store) Replace(ctx context.Context, row event.Row) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	query := `
		UPDATE events
		SET title = ?, date = ?, day = ?, duration = ?, start_time = ?, end_time = ?,
		    description = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.ExecContext(ctx, query,
		row.Title,
		row.Date,
		row.Day,
		row.Duration,
		nullString(row.StartTime),
		nullString(row.EndTime),
		row.Description,
		time.Now().UTC().Format(time.RFC3339),
		row.ID,
	)
	if err != nil {
		if isSlotUniquenessError(err) {
			return s.slotConflict(ctx, db, row)
		}
		return fmt.Errorf("failed to update event %d: %w", row.ID, err)
	}
	return requireAffected(result, event.ID(row.ID))
}

// Delete removes the row with the given ID.
func (s *Store) Delete(ctx context.Context, id event.ID) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete event %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// DeleteAll clears the table (for demo scenarios).
func (s *Store) DeleteAll(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}

func (s *Store) slotConflict(ctx context.Context, db *sql.DB, row event.Row) error {
	day, _ := event.ParseDay(row.Day)
	conflict := &event.SlotConflictError{Day: day, StartTime: row.StartTime}

	var existing int64
	err := db.QueryRowContext(ctx,
		"SELECT id FROM events WHERE day = ? AND start_time = ? AND duration = 'fixed' AND id != ?",
		row.Day, row.StartTime, row.ID,
	).Scan(&existing)
	if err == nil {
		conflict.ExistingID = event.ID(existing)
	}
	return conflict
}

// Helper functions

func requireAffected(result sql.Result, id event.ID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &event.NotFoundError{ID: id}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// The partial index reports its columns, not its name.
func isSlotUniquenessError(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), "events.day, events.start_time")
}
