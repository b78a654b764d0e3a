/*
Package event defines the calendar event record and the rules every stored
record must satisfy.

PURPOSE:
  This package is the leaf of the engine. It knows what an event looks like,
  how to validate one in isolation, how dates are bucketed into civil days,
  and how a record is flattened for storage. It performs no I/O.

KEY CONCEPTS IN THIS FILE (record.go):
  - Record: A scheduled item, either timed (Fixed) or all-day (AllDay)
  - Draft: Caller input before an ID has been assigned
  - IDSource: Where new IDs come from (see sequence.go)

INVARIANTS (checked by Validate, see validate.go):
  1. Title is not blank
  2. StartTime/EndTime are present iff Duration is Fixed
  3. StartTime is an hourly slot label, EndTime a well-formed label
  4. EndTime does not precede StartTime

  The cross-record rule (no two Fixed records share a start slot on the same
  day) needs store state and is enforced by event/index and schedule.

USAGE:
  rec := event.Create(event.Draft{
      Title:     "Standup",
      Date:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local),
      Duration:  event.Fixed,
      StartTime: "9:00 AM",
      EndTime:   "9:30 AM",
  }, seq)
  if err := event.Validate(rec); err != nil { ... }

SEE ALSO:
  - slots.go: The 24 hourly slot labels
  - day.go, period.go: Civil days and day/week/month windows
  - errors.go: Error taxonomy
*/
package event

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ID identifies a record. Zero means "not assigned yet".
type ID int64

// IDSource hands out record IDs.
type IDSource interface {
	NextID() ID
}

// =============================================================================
// DURATION
// =============================================================================

// Duration tells whether an event occupies a slot or the whole day.
type Duration string

const (
	// Fixed events occupy a start/end slot and take part in collision checks.
	Fixed Duration = "fixed"
	// AllDay events have no slot and never collide.
	AllDay Duration = "day"
)

// Valid reports whether d is a known duration.
func (d Duration) Valid() bool {
	return d == Fixed || d == AllDay
}

// =============================================================================
// RECORD
// =============================================================================

// Record is a scheduled item. Records are values: the store keeps the
// authoritative copy and hands out copies.
type Record struct {
	ID          ID
	Title       string
	Date        time.Time
	Duration    Duration
	StartTime   string // slot label, "" when all-day
	EndTime     string // slot label, "" when all-day
	Description string
}

// Day returns the civil day the record is bucketed under.
func (r Record) Day() Day { return DayOf(r.Date) }

// IsFixed reports whether the record occupies a timed slot.
func (r Record) IsFixed() bool { return r.Duration == Fixed }

// Equal compares all fields. Dates are compared by instant.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Title == o.Title &&
		r.Date.Equal(o.Date) &&
		r.Duration == o.Duration &&
		r.StartTime == o.StartTime &&
		r.EndTime == o.EndTime &&
		r.Description == o.Description
}

// In returns a copy with the date expressed in loc.
func (r Record) In(loc *time.Location) Record {
	if loc != nil {
		r.Date = r.Date.In(loc)
	}
	return r
}

// Draft is caller input for a new or replacement record.
type Draft struct {
	ID          ID
	Title       string
	Date        time.Time
	Duration    Duration
	StartTime   string
	EndTime     string
	Description string
}

// Create builds a Record from a draft. A zero draft ID is filled from ids;
// an explicit ID is kept, which is how an existing record is reconstructed
// for replacement.
func Create(d Draft, ids IDSource) Record {
	id := d.ID
	if id == 0 && ids != nil {
		id = ids.NextID()
	}
	return Record{
		ID:          id,
		Title:       d.Title,
		Date:        d.Date,
		Duration:    d.Duration,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Description: d.Description,
	}
}

// Draft returns the record as a draft, keeping its ID.
func (r Record) Draft() Draft {
	return Draft{
		ID:          r.ID,
		Title:       r.Title,
		Date:        r.Date,
		Duration:    r.Duration,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Description: r.Description,
	}
}
