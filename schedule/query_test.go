package schedule_test

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/schedule"
)

// seedMarch fills a store with events around March 2024 and returns them by
// title.
func seedMarch(t *testing.T) (*schedule.Query, map[string]event.Record) {
	t.Helper()
	st, _ := newMemoryStore(t)
	ctx := context.Background()

	recs := []event.Record{
		allDay("Leap day", day(2024, 2, 29)),
		fixed("Grid start", day(2024, 2, 26), "8:00 AM", "9:00 AM"),
		fixed("Standup", day(2024, 3, 4), "9:00 AM", "9:30 AM"),
		allDay("Holiday", day(2024, 3, 4)),
		fixed("Lunch", day(2024, 3, 6), "12:00 PM", "1:00 PM"),
		fixed("Sunday brunch", day(2024, 3, 10), "11:00 AM", "12:30 PM"),
		fixed("Next week", day(2024, 3, 11), "9:00 AM", "10:00 AM"),
		allDay("Month end", day(2024, 3, 31)),
		fixed("April", day(2024, 4, 1), "9:00 AM", "10:00 AM"),
	}
	byTitle := make(map[string]event.Record)
	for _, r := range recs {
		added, err := st.Add(ctx, r)
		require.NoError(t, err)
		byTitle[r.Title] = added
	}
	return schedule.NewQuery(st), byTitle
}

func titles(recs []event.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestQuery_Day(t *testing.T) {
	q, _ := seedMarch(t)

	got, err := q.Day(context.Background(), time.Date(2024, 3, 4, 17, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"Standup", "Holiday"}, titles(got))
}

func TestQuery_Week(t *testing.T) {
	q, _ := seedMarch(t)
	ctx := context.Background()

	// Wednesday and the following Sunday land in the same Monday-Sunday week
	wed, err := q.Week(ctx, day(2024, 3, 6))
	require.NoError(t, err)
	sun, err := q.Week(ctx, day(2024, 3, 10))
	require.NoError(t, err)

	want := []string{"Standup", "Holiday", "Lunch", "Sunday brunch"}
	assert.Equal(t, want, titles(wed))
	assert.Equal(t, want, titles(sun))
}

func TestQuery_Month(t *testing.T) {
	q, _ := seedMarch(t)

	got, err := q.Month(context.Background(), day(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, []string{"Standup", "Holiday", "Lunch", "Sunday brunch", "Next week", "Month end"}, titles(got))
}

func TestQuery_MonthGrid(t *testing.T) {
	q, _ := seedMarch(t)

	// March 2024 grid: Mon Feb 26 through Sun Mar 31
	got, err := q.MonthGrid(context.Background(), day(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, []string{"Grid start", "Leap day", "Standup", "Holiday", "Lunch", "Sunday brunch", "Next week", "Month end"}, titles(got))

	// September 2024 starts on a Sunday, so its grid starts Mon Aug 26
	got, err = q.MonthGrid(context.Background(), day(2024, 9, 1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_RangeIsInclusive(t *testing.T) {
	q, _ := seedMarch(t)

	got, err := q.Range(context.Background(), event.NewPeriod(day(2024, 3, 31), day(2024, 4, 1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Month end", "April"}, titles(got))
}

func TestQuery_RangeMatchesFullScan(t *testing.T) {
	// GIVEN: random records spread over three months
	st, _ := newMemoryStore(t)
	q := schedule.NewQuery(st)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	base := day(2024, 2, 1)
	slots := event.Slots()

	for i := 0; i < 200; i++ {
		on := base.AddDate(0, 0, rng.Intn(90))
		rec := allDay(fmt.Sprintf("e%d", i), on)
		if rng.Intn(2) == 0 {
			s := slots[rng.Intn(len(slots))]
			rec = fixed(rec.Title, on, s.StartTime, s.EndTime)
		}
		_, err := st.Add(ctx, rec)
		if err != nil {
			require.ErrorIs(t, err, event.ErrSlotConflict)
		}
	}
	all, err := st.LoadAll(ctx)
	require.NoError(t, err)

	// WHEN/THEN: every random window returns exactly the records a full scan finds
	for i := 0; i < 50; i++ {
		from := base.AddDate(0, 0, rng.Intn(100)-5)
		to := from.AddDate(0, 0, rng.Intn(40))
		p := event.NewPeriod(from, to)

		want := []event.ID{}
		for _, rec := range all {
			if rec.Day() >= event.DayOf(from) && rec.Day() <= event.DayOf(to) {
				want = append(want, rec.ID)
			}
		}
		sort.Slice(want, func(a, b int) bool { return want[a] < want[b] })

		got, err := q.Range(ctx, p)
		require.NoError(t, err)
		ids := make([]event.ID, 0, len(got))
		for k, rec := range got {
			ids = append(ids, rec.ID)
			if k > 0 {
				prev := got[k-1]
				assert.True(t, prev.Day() < rec.Day() || (prev.Day() == rec.Day() && prev.ID < rec.ID), "order at %d", k)
			}
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		assert.Equal(t, want, ids, "range %s", p)
	}
}

func TestQuery_Search(t *testing.T) {
	q, recs := seedMarch(t)
	ctx := context.Background()

	got, err := q.Search(ctx, schedule.FieldStartTime, "9:00 AM")
	require.NoError(t, err)
	assert.Equal(t, []string{"Standup", "Next week", "April"}, titles(got))

	got, err = q.Search(ctx, schedule.FieldTitle, "Holiday")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recs["Holiday"].ID, got[0].ID)

	got, err = q.Search(ctx, schedule.FieldDuration, "day")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = q.Search(ctx, "date", "2024-03-04")
	assert.ErrorIs(t, err, event.ErrInvalidRecord)
}

func TestQuery_Summaries(t *testing.T) {
	q, _ := seedMarch(t)

	sums, err := q.Summaries(context.Background(), event.WeekPeriod(day(2024, 3, 4)))
	require.NoError(t, err)
	require.Len(t, sums, 7)

	monday := sums[0]
	assert.Equal(t, "2024-03-04", monday.Day.String())
	assert.Equal(t, 1, monday.Fixed)
	assert.Equal(t, 1, monday.AllDay)
	assert.True(t, decimal.RequireFromString("0.5").Equal(monday.BookedHours), monday.BookedHours.String())

	assert.Equal(t, 0, sums[1].Fixed+sums[1].AllDay)
	assert.True(t, sums[1].BookedHours.IsZero())

	sunday := sums[6]
	assert.True(t, decimal.RequireFromString("1.5").Equal(sunday.BookedHours))
}

func TestBookedHours(t *testing.T) {
	tests := []struct {
		rec  event.Record
		want string
	}{
		{fixed("a", day(2024, 3, 4), "9:00 AM", "9:30 AM"), "0.5"},
		{fixed("b", day(2024, 3, 4), "11:00 PM", "12:00 AM"), "1"},
		{fixed("c", day(2024, 3, 4), "9:00 AM", "9:00 AM"), "0"},
		{fixed("d", day(2024, 3, 4), "9:00 AM", "9:20 AM"), "0.3333333333333333"},
		{allDay("e", day(2024, 3, 4)), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.rec.Title, func(t *testing.T) {
			got := schedule.BookedHours(tt.rec)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), got.String())
		})
	}
}

func TestGroupByDay(t *testing.T) {
	recs := []event.Record{
		{ID: 5, Title: "late", Date: day(2024, 3, 4), Duration: event.Fixed, StartTime: "3:00 PM", EndTime: "4:00 PM"},
		{ID: 2, Title: "holiday", Date: day(2024, 3, 4), Duration: event.AllDay},
		{ID: 9, Title: "early", Date: day(2024, 3, 4), Duration: event.Fixed, StartTime: "8:00 AM", EndTime: "9:00 AM"},
		{ID: 1, Title: "prev", Date: day(2024, 3, 3), Duration: event.AllDay},
	}

	groups := schedule.GroupByDay(recs)
	require.Len(t, groups, 2)

	assert.Equal(t, "2024-03-03", groups[0].Day.String())
	assert.Equal(t, []string{"prev"}, titles(groups[0].AllDay))

	assert.Equal(t, []string{"holiday"}, titles(groups[1].AllDay))
	assert.Equal(t, []string{"early", "late"}, titles(groups[1].Timed))
}
