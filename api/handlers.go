/*
handlers.go - HTTP API handlers for the calendar event engine

PURPOSE:
  Exposes the event store and query facade via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to schedule.Store.

ENDPOINTS:
  Events:
    GET    /api/events                 List all events
    POST   /api/events                 Add event
    GET    /api/events/search          Search by field value
    GET    /api/events/{id}            Get event
    PUT    /api/events/{id}            Replace event
    DELETE /api/events/{id}            Delete event

  Calendar views:
    GET    /api/calendar/day/{year}/{month}/{day}
    GET    /api/calendar/week/{year}/{month}/{day}
    GET    /api/calendar/month/{year}/{month}[?grid=true]
    GET    /api/calendar/summary?from=&to=

  Interchange:
    GET    /api/export.ics             ICS export
    POST   /api/import                 ICS import

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert to event.Record (dates anchored in the store location)
  3. Call schedule.Store / schedule.Query
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  - 400: ErrInvalidRecord, malformed input
  - 404: ErrNotFound
  - 409: ErrSlotConflict
  - 503: ErrStorageUnavailable, store closed
  - 500: anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - stream.go: WebSocket snapshot stream
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/ics"
	"github.com/warp/calendar-engine/internal/log"
	"github.com/warp/calendar-engine/schedule"
)

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 8 << 20

	// maxSummaryDays bounds GET /api/calendar/summary.
	maxSummaryDays = 366
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *schedule.Store
	Query  *schedule.Query
	Backup *BackupScheduler // nil when backups are disabled

	// AllowedOrigins is used for CORS and the WebSocket origin check.
	// Empty means the local development origins.
	AllowedOrigins []string

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over an opened store.
func NewHandler(store *schedule.Store) *Handler {
	return &Handler{
		Store: store,
		Query: schedule.NewQuery(store),
	}
}

func (h *Handler) loc() *time.Location { return h.Store.Location() }

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents returns every event ordered by day, then start.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.LoadAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(recs))
}

// CreateEvent adds an event. The store assigns the ID.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := req.toRecord(0, h.loc())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	added, err := h.Store.Add(r.Context(), rec)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(added))
}

// GetEvent returns one event.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event ID", err)
		return
	}

	rec, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(rec))
}

// UpdateEvent replaces an event wholesale. Moving a fixed event onto its own
// slot is allowed; onto another event's slot is a conflict.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event ID", err)
		return
	}

	var req EventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := req.toRecord(id, h.loc())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if err := h.Store.Update(r.Context(), rec); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(rec))
}

// DeleteEvent removes an event.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event ID", err)
		return
	}

	if err := h.Store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchEvents returns events whose field equals value exactly.
// GET /api/events/search?field=start_time&value=9:00%20AM
func (h *Handler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if field == "" {
		writeError(w, http.StatusBadRequest, "field is required", nil)
		return
	}

	recs, err := h.Query.Search(r.Context(), field, value)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(recs))
}

// =============================================================================
// CALENDAR VIEWS
// =============================================================================

// DayView returns the events of one day.
func (h *Handler) DayView(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, event.ModeDay)
}

// WeekView returns the Monday-Sunday week containing the date.
func (h *Handler) WeekView(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, event.ModeWeek)
}

// MonthView returns a calendar month, or the 35-day grid with ?grid=true.
func (h *Handler) MonthView(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, event.ModeMonth)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request, mode event.Mode) {
	anchor, err := h.parseAnchor(r, mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	ctx := r.Context()
	grid := mode == event.ModeMonth && r.URL.Query().Get("grid") == "true"
	period := event.PeriodFor(anchor, mode)

	var recs []event.Record
	switch {
	case grid:
		period = event.MonthGrid(anchor)
		recs, err = h.Query.MonthGrid(ctx, anchor)
	case mode == event.ModeWeek:
		recs, err = h.Query.Week(ctx, anchor)
	case mode == event.ModeMonth:
		recs, err = h.Query.Month(ctx, anchor)
	default:
		recs, err = h.Query.Day(ctx, anchor)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := RangeResponse{
		Mode:   string(mode),
		From:   period.FirstDay().String(),
		To:     period.LastDay().String(),
		Prev:   event.DayOf(event.Step(anchor, mode, -1)).String(),
		Next:   event.DayOf(event.Step(anchor, mode, 1)).String(),
		Events: toEventDTOs(recs),
		Days:   toDayDTOs(schedule.GroupByDay(recs)),
	}
	if grid {
		for _, week := range period.Weeks() {
			row := make([]string, len(week))
			for i, d := range week {
				row[i] = d.String()
			}
			resp.Weeks = append(resp.Weeks, row)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseAnchor reads {year}/{month}[/{day}] from the URL. Month views have
// no day segment and anchor on the 1st.
func (h *Handler) parseAnchor(r *http.Request, mode event.Mode) (time.Time, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return time.Time{}, fmt.Errorf("year: %w", err)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month %q out of range", chi.URLParam(r, "month"))
	}

	day := 1
	if mode != event.ModeMonth {
		day, err = strconv.Atoi(chi.URLParam(r, "day"))
		if err != nil || day < 1 || day > event.DaysIn(year, time.Month(month)) {
			return time.Time{}, fmt.Errorf("day %q out of range", chi.URLParam(r, "day"))
		}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, h.loc()), nil
}

// Summary returns per-day counts and booked hours for [from, to].
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	from, err := event.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD", err)
		return
	}
	to, err := event.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD", err)
		return
	}
	if to < from {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}
	if int(to-from)+1 > maxSummaryDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("range is limited to %d days", maxSummaryDays), nil)
		return
	}

	period := event.NewPeriod(from.Time(h.loc()), to.Time(h.loc()))
	sums, err := h.Query.Summaries(r.Context(), period)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := SummaryResponse{
		From:       from.String(),
		To:         to.String(),
		Days:       make([]SummaryDTO, len(sums)),
		TotalHours: decimal.Zero,
	}
	for i, s := range sums {
		resp.Days[i] = SummaryDTO{
			Date:        s.Day.String(),
			Fixed:       s.Fixed,
			AllDay:      s.AllDay,
			BookedHours: s.BookedHours,
		}
		resp.TotalHours = resp.TotalHours.Add(s.BookedHours)
		resp.TotalEvents += s.Fixed + s.AllDay
	}
	writeJSON(w, http.StatusOK, resp)
}

// Slots returns the 24 hourly slot labels.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	slots := event.Slots()
	out := make([]SlotDTO, len(slots))
	for i, s := range slots {
		out[i] = SlotDTO{Index: s.Index, StartTime: s.StartTime, EndTime: s.EndTime}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ICS INTERCHANGE
// =============================================================================

// ExportICS streams every event as a VCALENDAR attachment.
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.LoadAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := ics.Encode(&buf, recs, h.loc()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode calendar", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ImportICS adds every VEVENT of the uploaded calendar and reports each
// outcome. A conflicting event does not stop the import.
func (h *Handler) ImportICS(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	drafts, err := ics.Decode(body, h.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid calendar", err)
		return
	}

	resp := ImportResponse{Results: make([]ImportResultDTO, 0, len(drafts))}
	for _, d := range drafts {
		res := h.addSeed(r.Context(), event.Create(d, nil))
		if res.Status == ImportAdded {
			resp.Added++
		} else {
			resp.Rejected++
		}
		resp.Results = append(resp.Results, res)
	}

	log.Info("ics import completed", "added", resp.Added, "rejected", resp.Rejected)
	writeJSON(w, http.StatusOK, resp)
}

// addSeed adds one record and classifies the outcome. Shared by imports and
// scenarios.
func (h *Handler) addSeed(ctx context.Context, rec event.Record) ImportResultDTO {
	res := ImportResultDTO{
		Title:     rec.Title,
		Date:      rec.Day().String(),
		StartTime: rec.StartTime,
	}

	added, err := h.Store.Add(ctx, rec)
	switch {
	case err == nil:
		res.Status = ImportAdded
		res.ID = int64(added.ID)
		return res
	case errors.Is(err, event.ErrSlotConflict):
		res.Status = ImportConflict
	case errors.Is(err, event.ErrInvalidRecord):
		res.Status = ImportInvalid
	default:
		res.Status = ImportFailed
	}
	res.Error = err.Error()
	return res
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and the current store version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"events":  h.Store.Len(),
		"version": h.Store.Version(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseID(r *http.Request) (event.ID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("id %d must be positive", n)
	}
	return event.ID(n), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps the event error taxonomy onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	var (
		invalid  *event.ValidationError
		conflict *event.SlotConflictError
	)

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   err.Error(),
			Code:    "invalid_record",
			Details: map[string]string{"field": invalid.Field, "reason": invalid.Reason},
		})
	case errors.Is(err, event.ErrInvalidRecord):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_record"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "slot_conflict",
			Details: map[string]any{
				"date":        conflict.Day.String(),
				"start_time":  conflict.StartTime,
				"existing_id": int64(conflict.ExistingID),
			},
		})
	case errors.Is(err, event.ErrSlotConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "slot_conflict"})
	case errors.Is(err, event.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, event.ErrStorageUnavailable), errors.Is(err, event.ErrClosed):
		log.Error("storage unavailable", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: "storage_unavailable", Details: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled", Code: "cancelled"})
	default:
		log.Error("unhandled error", err)
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
