package schedule

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/calendar-engine/event"
)

// DaySummary is the per-day rollup a week or month view shows.
type DaySummary struct {
	Day         event.Day
	Fixed       int
	AllDay      int
	BookedHours decimal.Decimal
}

// DayGroup is one day's records split the way a day cell lists them.
type DayGroup struct {
	Day    event.Day
	AllDay []event.Record
	Timed  []event.Record // by start slot
}

var minutesPerHour = decimal.NewFromInt(60)

// BookedHours returns the length of a fixed record in hours (9:00 AM to
// 9:30 AM is 0.5). All-day records book nothing.
func BookedHours(r event.Record) decimal.Decimal {
	if !r.IsFixed() {
		return decimal.Zero
	}
	start, err := event.ParseClock(r.StartTime)
	if err != nil {
		return decimal.Zero
	}
	end, err := event.EndMinutes(r.EndTime)
	if err != nil || end < start {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(end - start)).Div(minutesPerHour)
}

// Summaries returns one summary per day of p, including empty days.
func (q *Query) Summaries(ctx context.Context, p event.Period) ([]DaySummary, error) {
	records, err := q.Range(ctx, p)
	if err != nil {
		return nil, err
	}

	byDay := make(map[event.Day]*DaySummary)
	days := p.Days()
	out := make([]DaySummary, len(days))
	for i, d := range days {
		out[i] = DaySummary{Day: d, BookedHours: decimal.Zero}
		byDay[d] = &out[i]
	}

	for _, rec := range records {
		sum, ok := byDay[rec.Day()]
		if !ok {
			continue
		}
		if rec.IsFixed() {
			sum.Fixed++
			sum.BookedHours = sum.BookedHours.Add(BookedHours(rec))
		} else {
			sum.AllDay++
		}
	}
	return out, nil
}

// GroupByDay buckets records by civil day, days ascending. All-day records
// keep ID order; timed records are sorted by start slot.
func GroupByDay(records []event.Record) []DayGroup {
	groups := make(map[event.Day]*DayGroup)
	var order []event.Day

	for _, rec := range records {
		day := rec.Day()
		g, ok := groups[day]
		if !ok {
			g = &DayGroup{Day: day}
			groups[day] = g
			order = append(order, day)
		}
		if rec.IsFixed() {
			g.Timed = append(g.Timed, rec)
		} else {
			g.AllDay = append(g.AllDay, rec)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]DayGroup, 0, len(order))
	for _, day := range order {
		g := groups[day]
		sort.SliceStable(g.AllDay, func(i, j int) bool { return g.AllDay[i].ID < g.AllDay[j].ID })
		sort.SliceStable(g.Timed, func(i, j int) bool { return event.CompareStart(g.Timed[i], g.Timed[j]) < 0 })
		out = append(out, *g)
	}
	return out
}
