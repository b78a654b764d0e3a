/*
backend.go - Persistence interface for event records

PURPOSE:
  Defines the boundary between the transactional store (package schedule)
  and the durable medium. Implementations only persist rows; they do not
  validate, index, or notify. The store owns every invariant.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite file (or ":memory:") database
  - event/store/memory.go: In-memory rows for tests and ephemeral runs

STORED FORM:
  Dates are stored as UTC text with millisecond precision
  ("2024-03-04T08:00:00.000Z"), which sorts lexically in time order. The
  civil day the record is bucketed under is stored next to it ("2024-03-04")
  so collision checks and range queries never depend on the reader's zone.
  StartTime/EndTime are "" (NULL in SQL) for all-day events.

SEE ALSO:
  - schedule/store.go: The only caller
*/
package event

import (
	"context"
	"fmt"
	"time"
)

// Backend is the durable medium behind the store. Every method is a
// suspension point: it may block on I/O.
type Backend interface {
	// Open prepares the medium (schema, pragmas). Safe to call again after
	// a failure.
	Open(ctx context.Context) error

	// LoadAll returns every stored row ordered by date, then id.
	LoadAll(ctx context.Context) ([]Row, error)

	// Insert stores a new row.
	Insert(ctx context.Context, row Row) error

	// Replace overwrites the row with the same ID. Returns ErrNotFound if
	// there is none.
	Replace(ctx context.Context, row Row) error

	// Delete removes the row with the given ID. Returns ErrNotFound if
	// there is none.
	Delete(ctx context.Context, id ID) error

	// DeleteAll removes every row.
	DeleteAll(ctx context.Context) error

	Close() error
}

// =============================================================================
// ROW - Stored form of a record
// =============================================================================

// StoredDateLayout is the sortable, zone-normalized text form of Record.Date.
const StoredDateLayout = "2006-01-02T15:04:05.000Z07:00"

// Row is a record flattened for storage.
type Row struct {
	ID          int64
	Title       string
	Date        string // StoredDateLayout, UTC
	Day         string // YYYY-MM-DD civil day
	Duration    string
	StartTime   string // "" when all-day
	EndTime     string // "" when all-day
	Description string
}

// ToRow flattens a record for storage.
func ToRow(r Record) Row {
	row := Row{
		ID:          int64(r.ID),
		Title:       r.Title,
		Date:        r.Date.UTC().Format(StoredDateLayout),
		Day:         r.Day().String(),
		Duration:    string(r.Duration),
		Description: r.Description,
	}
	if r.Duration == Fixed {
		row.StartTime = r.StartTime
		row.EndTime = r.EndTime
	}
	return row
}

// FromRow rebuilds a record with its date expressed in loc. If the stored
// instant falls on a different civil day in loc than the one it was
// bucketed under, the record is placed at midnight of the stored day so it
// keeps its slot.
func FromRow(row Row, loc *time.Location) (Record, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.Parse(StoredDateLayout, row.Date)
	if err != nil {
		return Record{}, fmt.Errorf("row %d: bad date %q: %w", row.ID, row.Date, err)
	}
	t = t.In(loc)

	if row.Day != "" {
		day, err := ParseDay(row.Day)
		if err != nil {
			return Record{}, fmt.Errorf("row %d: bad day %q: %w", row.ID, row.Day, err)
		}
		if DayOf(t) != day {
			t = day.Time(loc)
		}
	}

	return Record{
		ID:          ID(row.ID),
		Title:       row.Title,
		Date:        t,
		Duration:    Duration(row.Duration),
		StartTime:   row.StartTime,
		EndTime:     row.EndTime,
		Description: row.Description,
	}, nil
}
