/*
handlers_test.go - HTTP tests for the event API

Tests for:
- Event CRUD and the error-to-status mapping
- Calendar views and their prev/next anchors
- Summary, slots and health
- ICS export followed by import of the same calendar
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/calendar-engine/event/store"
	"github.com/warp/calendar-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	h   *Handler
	mem *store.Memory
	mux http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	st := schedule.NewStore(mem, schedule.Options{Location: time.UTC})
	require.NoError(t, st.Open(context.Background()))
	t.Cleanup(func() { st.Close() })

	h := NewHandler(st)
	return &testServer{h: h, mem: mem, mux: NewRouter(h)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T, req EventRequest) EventDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/events", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	return dto
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func standup(date string) EventRequest {
	return EventRequest{Title: "Standup", Date: date, Duration: "fixed", StartTime: "9:00 AM", EndTime: "9:30 AM"}
}

// =============================================================================
// EVENTS
// =============================================================================

func TestCreateEvent_AndGet(t *testing.T) {
	ts := newTestServer(t)

	created := ts.create(t, standup("2024-03-04"))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "2024-03-04", created.Date)
	assert.Equal(t, "fixed", created.Duration)

	rec := ts.do(t, http.MethodGet, "/api/events/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[EventDTO](t, rec)
	assert.Equal(t, created, got)

	rec = ts.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]EventDTO](t, rec), 1)
}

func TestCreateEvent_DurationDefaults(t *testing.T) {
	ts := newTestServer(t)

	timed := ts.create(t, EventRequest{Title: "Call", Date: "2024-03-04", StartTime: "2:00 PM", EndTime: "3:00 PM"})
	assert.Equal(t, "fixed", timed.Duration)

	whole := ts.create(t, EventRequest{Title: "Holiday", Date: "2024-03-04"})
	assert.Equal(t, "day", whole.Duration)
	assert.Empty(t, whole.StartTime)
}

func TestCreateEvent_SlotConflict(t *testing.T) {
	// GIVEN: a standup at 9:00 AM
	ts := newTestServer(t)
	first := ts.create(t, standup("2024-03-04"))

	// WHEN: another event asks for the same slot
	req := standup("2024-03-04")
	req.Title = "Design review"
	rec := ts.do(t, http.MethodPost, "/api/events", req)

	// THEN: 409 naming the occupant
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "slot_conflict", resp.Code)
	details := resp.Details.(map[string]any)
	assert.Equal(t, float64(first.ID), details["existing_id"])
	assert.Equal(t, "9:00 AM", details["start_time"])
}

func TestCreateEvent_Invalid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"blank title", EventRequest{Title: " ", Date: "2024-03-04"}, "invalid_record"},
		{"bad date", EventRequest{Title: "x", Date: "03/04/2024"}, "invalid_record"},
		{"off-slot start", EventRequest{Title: "x", Date: "2024-03-04", StartTime: "9:30 AM", EndTime: "10:00 AM"}, "invalid_record"},
		{"end before start", EventRequest{Title: "x", Date: "2024-03-04", StartTime: "9:00 AM", EndTime: "8:00 AM"}, "invalid_record"},
		{"unknown field", `{"title":"x","date":"2024-03-04","colour":"red"}`, ""},
		{"not json", `{`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/events", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
	assert.Equal(t, 0, ts.h.Store.Len())
}

func TestUpdateEvent(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, standup("2024-03-04"))
	ts.create(t, EventRequest{Title: "Lunch", Date: "2024-03-04", StartTime: "12:00 PM", EndTime: "1:00 PM"})

	t.Run("own slot", func(t *testing.T) {
		req := standup("2024-03-04")
		req.Description = "moved to the big room"
		rec := ts.do(t, http.MethodPut, "/api/events/1", req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "moved to the big room", decode[EventDTO](t, rec).Description)
	})

	t.Run("taken slot", func(t *testing.T) {
		req := standup("2024-03-04")
		req.StartTime, req.EndTime = "12:00 PM", "12:30 PM"
		rec := ts.do(t, http.MethodPut, "/api/events/1", req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/api/events/99", standup("2024-03-05"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/api/events/zero", standup("2024-03-05"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec := ts.do(t, http.MethodGet, "/api/events/1", nil)
	got := decode[EventDTO](t, rec)
	assert.Equal(t, a.StartTime, got.StartTime)
}

func TestDeleteEvent(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))

	rec := ts.do(t, http.MethodDelete, "/api/events/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/events/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the slot is free again
	ts.create(t, standup("2024-03-04"))
}

func TestSearchEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))
	ts.create(t, standup("2024-03-05"))
	ts.create(t, EventRequest{Title: "Holiday", Date: "2024-03-04"})

	rec := ts.do(t, http.MethodGet, "/api/events/search?field=start_time&value=9:00%20AM", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]EventDTO](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/events/search?field=colour&value=red", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/events/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageFailure_Returns503(t *testing.T) {
	ts := newTestServer(t)
	ts.mem.FailOn("insert", errors.New("disk full"))

	rec := ts.do(t, http.MethodPost, "/api/events", standup("2024-03-04"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage_unavailable", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, 0, ts.h.Store.Len())
}

// =============================================================================
// CALENDAR VIEWS
// =============================================================================

func TestWeekView(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))
	ts.create(t, EventRequest{Title: "Holiday", Date: "2024-03-04"})
	ts.create(t, standup("2024-03-11"))

	rec := ts.do(t, http.MethodGet, "/api/calendar/week/2024/3/6", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RangeResponse](t, rec)

	assert.Equal(t, "week", resp.Mode)
	assert.Equal(t, "2024-03-04", resp.From)
	assert.Equal(t, "2024-03-10", resp.To)
	assert.Equal(t, "2024-02-28", resp.Prev)
	assert.Equal(t, "2024-03-13", resp.Next)
	require.Len(t, resp.Events, 2)

	require.Len(t, resp.Days, 1)
	assert.Equal(t, "Holiday", resp.Days[0].AllDay[0].Title)
	assert.Equal(t, "Standup", resp.Days[0].Timed[0].Title)
}

func TestMonthView(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, EventRequest{Title: "Grid only", Date: "2024-02-26"})
	ts.create(t, EventRequest{Title: "Month end", Date: "2024-03-31"})

	rec := ts.do(t, http.MethodGet, "/api/calendar/month/2024/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RangeResponse](t, rec)
	assert.Equal(t, "2024-03-01", resp.From)
	assert.Equal(t, "2024-03-31", resp.To)
	assert.Equal(t, "2024-02-01", resp.Prev)
	assert.Equal(t, "2024-04-01", resp.Next)
	assert.Len(t, resp.Events, 1)
	assert.Empty(t, resp.Weeks)

	rec = ts.do(t, http.MethodGet, "/api/calendar/month/2024/3?grid=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[RangeResponse](t, rec)
	assert.Equal(t, "2024-02-26", resp.From)
	assert.Equal(t, "2024-03-31", resp.To)
	assert.Len(t, resp.Events, 2)
	require.Len(t, resp.Weeks, 5)
	assert.Equal(t, "2024-02-26", resp.Weeks[0][0])
}

func TestDayView_RejectsBadDates(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/calendar/day/2024/2/30",
		"/api/calendar/day/2024/13/1",
		"/api/calendar/day/year/1/1",
		"/api/calendar/month/2024/0",
	} {
		rec := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := ts.do(t, http.MethodGet, "/api/calendar/day/2024/2/29", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RangeResponse](t, rec)
	assert.Equal(t, "2024-02-28", resp.Prev)
	assert.Equal(t, "2024-03-01", resp.Next)
	assert.Empty(t, resp.Events)
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))
	ts.create(t, EventRequest{Title: "Brunch", Date: "2024-03-05", StartTime: "11:00 AM", EndTime: "12:30 PM"})
	ts.create(t, EventRequest{Title: "Holiday", Date: "2024-03-05"})

	rec := ts.do(t, http.MethodGet, "/api/calendar/summary?from=2024-03-04&to=2024-03-06", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SummaryResponse](t, rec)

	require.Len(t, resp.Days, 3)
	assert.Equal(t, "0.5", resp.Days[0].BookedHours.String())
	assert.Equal(t, 1, resp.Days[1].AllDay)
	assert.Equal(t, "1.5", resp.Days[1].BookedHours.String())
	assert.Equal(t, "2", resp.TotalHours.String())
	assert.Equal(t, 3, resp.TotalEvents)

	for _, q := range []string{
		"from=2024-03-06&to=2024-03-04",
		"from=2024-03-04",
		"from=2020-01-01&to=2024-01-01",
	} {
		rec := ts.do(t, http.MethodGet, "/api/calendar/summary?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestSlotsAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]SlotDTO](t, rec)
	require.Len(t, slots, 24)
	assert.Equal(t, "12:00 AM", slots[0].StartTime)
	assert.Equal(t, "9:00 AM", slots[9].StartTime)
	assert.Equal(t, "12:00 AM", slots[23].EndTime)

	ts.create(t, standup("2024-03-04"))
	rec = ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["events"])
}

// =============================================================================
// ICS
// =============================================================================

func TestExportThenImport(t *testing.T) {
	// GIVEN: a fixed and an all-day event
	ts := newTestServer(t)
	ts.create(t, standup("2024-03-04"))
	ts.create(t, EventRequest{Title: "Holiday", Date: "2024-03-04"})

	rec := ts.do(t, http.MethodGet, "/api/export.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Standup")

	// WHEN: the same calendar is imported back
	rec = ts.do(t, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ImportResponse](t, rec)

	// THEN: the fixed event collides with itself, the all-day one is added
	assert.Equal(t, 1, resp.Added)
	assert.Equal(t, 1, resp.Rejected)
	statuses := map[string]string{}
	for _, r := range resp.Results {
		statuses[r.Title] = r.Status
	}
	assert.Equal(t, ImportConflict, statuses["Standup"])
	assert.Equal(t, ImportAdded, statuses["Holiday"])
	assert.Equal(t, 3, ts.h.Store.Len())
}

func TestImport_Garbage(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/import", "not a calendar")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
