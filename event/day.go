package event

import (
	"time"
)

// =============================================================================
// DAY - Civil day ordinal used as the index key
// =============================================================================

// Day is a civil date expressed as days since 1970-01-01. It ignores the
// time of day and the zone offset: 2024-03-04 is the same Day whether the
// record was written at 00:00 or 23:30 local time.
type Day int64

const dayLayout = "2006-01-02"

// DayOf returns the civil day of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// NewDay builds a Day from calendar fields.
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDay parses a "YYYY-MM-DD" string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, err
	}
	return DayOf(t), nil
}

// Time returns midnight of the day in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(1970, time.January, 1+int(d), 0, 0, 0, 0, loc)
}

// AddDays returns the day n days later.
func (d Day) AddDays(n int) Day { return d + Day(n) }

func (d Day) Weekday() time.Weekday { return d.Time(time.UTC).Weekday() }
func (d Day) String() string        { return d.Time(time.UTC).Format(dayLayout) }

// =============================================================================
// DAY BOUNDS
// =============================================================================

// StartOfDay returns 00:00:00.000 of t's civil day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's civil day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// InLocation keeps t's wall clock (date and time of day) and moves it into
// loc. Unlike t.In(loc) it never changes the civil day. The zero time is
// returned unchanged so it still reads as "no date".
func InLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil || t.IsZero() || t.Location() == loc {
		return t
	}
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), loc)
}
