package event

import "time"

// =============================================================================
// PERIOD - Inclusive window used by range queries
// =============================================================================

// Period is an inclusive time window. Range queries bucket by civil day, so
// only FirstDay and LastDay matter to the index; Start and End carry the
// 00:00:00.000 / 23:59:59.999 bounds for display and for callers that
// compare instants.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod spans the civil days of from and to, inclusive.
func NewPeriod(from, to time.Time) Period {
	return Period{Start: StartOfDay(from), End: EndOfDay(to)}
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// ContainsDay returns true if d falls on one of the period's civil days.
func (p Period) ContainsDay(d Day) bool {
	return d >= p.FirstDay() && d <= p.LastDay()
}

func (p Period) FirstDay() Day { return DayOf(p.Start) }
func (p Period) LastDay() Day  { return DayOf(p.End) }

// Days returns every civil day in the period.
func (p Period) Days() []Day {
	var days []Day
	for d := p.FirstDay(); d <= p.LastDay(); d++ {
		days = append(days, d)
	}
	return days
}

// Len returns the number of civil days covered.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return int(p.LastDay()-p.FirstDay()) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.FirstDay().String() + ", " + p.LastDay().String() + "]"
}

// =============================================================================
// CALENDAR WINDOWS
// =============================================================================

// GridDays is the number of cells in a month grid (5 weeks).
const GridDays = 35

// DayPeriod returns the single-day window containing t.
func DayPeriod(t time.Time) Period {
	return NewPeriod(t, t)
}

// StartOfWeek returns midnight of the Monday on or before t. Sundays step
// back six days.
func StartOfWeek(t time.Time) time.Time {
	start := StartOfDay(t)
	wd := start.Weekday()
	if wd == time.Sunday {
		return start.AddDate(0, 0, -6)
	}
	return start.AddDate(0, 0, -int(wd-time.Monday))
}

// WeekPeriod returns Monday through Sunday of the week containing t.
func WeekPeriod(t time.Time) Period {
	start := StartOfWeek(t)
	return Period{Start: start, End: EndOfDay(start.AddDate(0, 0, 6))}
}

// MonthPeriod returns the 1st through the last day of t's month.
func MonthPeriod(t time.Time) Period {
	y, m, _ := t.Date()
	loc := t.Location()
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := time.Date(y, m, DaysIn(y, m), 0, 0, 0, 0, loc)
	return Period{Start: first, End: EndOfDay(last)}
}

// MonthGrid returns the 35-day window a month view displays: five weeks
// starting at the Monday on or before the 1st. Days outside the month are
// included, not clipped.
func MonthGrid(t time.Time) Period {
	y, m, _ := t.Date()
	start := StartOfWeek(time.Date(y, m, 1, 0, 0, 0, 0, t.Location()))
	return Period{Start: start, End: EndOfDay(start.AddDate(0, 0, GridDays-1))}
}

// Weeks splits a period into rows of seven days.
func (p Period) Weeks() [][]Day {
	var weeks [][]Day
	var week []Day
	for _, d := range p.Days() {
		week = append(week, d)
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = nil
		}
	}
	if len(week) > 0 {
		weeks = append(weeks, week)
	}
	return weeks
}

// =============================================================================
// STEPPING - Moving the anchor date of a view
// =============================================================================

// Mode is a calendar view granularity.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
	ModeYear  Mode = "year"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDay, ModeWeek, ModeMonth, ModeYear:
		return true
	}
	return false
}

// Step moves t by n units of mode. Month steps clamp to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29). Unknown modes step by days.
func Step(t time.Time, mode Mode, n int) time.Time {
	switch mode {
	case ModeWeek:
		return t.AddDate(0, 0, 7*n)
	case ModeMonth:
		y, m, d := t.Date()
		hh, mm, ss := t.Clock()
		target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
		if last := DaysIn(target.Year(), target.Month()); d > last {
			d = last
		}
		return time.Date(target.Year(), target.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
	case ModeYear:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// PeriodFor returns the window a view of the given mode shows around t.
// Year views cover January 1 through December 31.
func PeriodFor(t time.Time, mode Mode) Period {
	switch mode {
	case ModeWeek:
		return WeekPeriod(t)
	case ModeMonth:
		return MonthPeriod(t)
	case ModeYear:
		y := t.Year()
		loc := t.Location()
		return NewPeriod(time.Date(y, time.January, 1, 0, 0, 0, 0, loc), time.Date(y, time.December, 31, 0, 0, 0, 0, loc))
	default:
		return DayPeriod(t)
	}
}
