package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/calendar-engine/event"
)

// Query answers calendar-window questions over a Store. It never mutates.
type Query struct {
	store *Store
}

func NewQuery(store *Store) *Query {
	return &Query{store: store}
}

// Day returns the records on t's day.
func (q *Query) Day(ctx context.Context, t time.Time) ([]event.Record, error) {
	return q.Range(ctx, event.DayPeriod(q.local(t)))
}

// Week returns the records of the Monday-Sunday week containing t.
func (q *Query) Week(ctx context.Context, t time.Time) ([]event.Record, error) {
	return q.Range(ctx, event.WeekPeriod(q.local(t)))
}

// Month returns the records of t's calendar month.
func (q *Query) Month(ctx context.Context, t time.Time) ([]event.Record, error) {
	return q.Range(ctx, event.MonthPeriod(q.local(t)))
}

// MonthGrid returns the records in the 35-day grid shown for t's month.
func (q *Query) MonthGrid(ctx context.Context, t time.Time) ([]event.Record, error) {
	return q.Range(ctx, event.MonthGrid(q.local(t)))
}

// Range returns the records whose day lies within p, ordered by day, then ID.
func (q *Query) Range(ctx context.Context, p event.Period) ([]event.Record, error) {
	if err := q.store.waitReady(ctx); err != nil {
		return nil, err
	}
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()
	return q.store.rangeLocked(p.FirstDay(), p.LastDay()), nil
}

func (q *Query) local(t time.Time) time.Time {
	return event.InLocation(t, q.store.loc)
}

// =============================================================================
// SEARCH - Unindexed field equality
// =============================================================================

// Field names accepted by Search.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldDuration    = "duration"
	FieldStartTime   = "start_time"
	FieldEndTime     = "end_time"
)

var searchFields = map[string]func(event.Record) string{
	FieldTitle:       func(r event.Record) string { return r.Title },
	FieldDescription: func(r event.Record) string { return r.Description },
	FieldDuration:    func(r event.Record) string { return string(r.Duration) },
	FieldStartTime:   func(r event.Record) string { return r.StartTime },
	FieldEndTime:     func(r event.Record) string { return r.EndTime },
}

// Search returns every record whose field equals value exactly, in LoadAll
// order. An unknown field is a validation error.
func (q *Query) Search(ctx context.Context, field, value string) ([]event.Record, error) {
	get, ok := searchFields[field]
	if !ok {
		return nil, &event.ValidationError{Field: "field", Reason: fmt.Sprintf("cannot search by %q", field)}
	}

	all, err := q.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []event.Record
	for _, rec := range all {
		if get(rec) == value {
			out = append(out, rec)
		}
	}
	return out, nil
}
