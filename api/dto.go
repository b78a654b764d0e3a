/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines the JSON shapes used by the REST API. DTOs separate the API
  contract from the event model so either can change independently.

NAMING CONVENTION:
  - *DTO: Response objects (server -> client)
  - *Request: Request objects (client -> server)
  - *Response: Wrapper responses with metadata

DATE FORMATS:
  Dates are "YYYY-MM-DD" civil days. Times are hourly slot labels
  ("9:00 AM"); end times may carry minutes ("9:30 AM").

SEE ALSO:
  - handlers.go: Uses these DTOs
  - event/record.go: The model they map to
*/
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/schedule"
)

// =============================================================================
// EVENT DTOs
// =============================================================================

// EventDTO represents an event record in API responses.
type EventDTO struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Duration    string `json:"duration"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	Description string `json:"description,omitempty"`
}

// EventRequest is the body of POST /api/events and PUT /api/events/{id}.
type EventRequest struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Duration    string `json:"duration"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	Description string `json:"description,omitempty"`
}

// =============================================================================
// CALENDAR DTOs
// =============================================================================

// RangeResponse is a calendar view: the events in a window plus the
// anchors for the previous and next window.
type RangeResponse struct {
	Mode   string     `json:"mode"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	Prev   string     `json:"prev"`
	Next   string     `json:"next"`
	Events []EventDTO `json:"events"`
	Days   []DayDTO   `json:"days,omitempty"`
	Weeks  [][]string `json:"weeks,omitempty"`
}

// DayDTO is one day cell: all-day events first, then timed events by slot.
type DayDTO struct {
	Date   string     `json:"date"`
	AllDay []EventDTO `json:"all_day"`
	Timed  []EventDTO `json:"timed"`
}

// SummaryDTO is the per-day rollup for GET /api/calendar/summary.
type SummaryDTO struct {
	Date        string          `json:"date"`
	Fixed       int             `json:"fixed"`
	AllDay      int             `json:"all_day"`
	BookedHours decimal.Decimal `json:"booked_hours"`
}

// SummaryResponse wraps the summaries with totals.
type SummaryResponse struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Days        []SummaryDTO    `json:"days"`
	TotalHours  decimal.Decimal `json:"total_hours"`
	TotalEvents int             `json:"total_events"`
}

// SlotDTO is one entry of GET /api/slots.
type SlotDTO struct {
	Index     int    `json:"index"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// =============================================================================
// IMPORT / SCENARIO DTOs
// =============================================================================

// Import outcomes.
const (
	ImportAdded    = "added"
	ImportConflict = "conflict"
	ImportInvalid  = "invalid"
	ImportFailed   = "failed"
)

// ImportResultDTO reports what happened to one imported VEVENT.
type ImportResultDTO struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	StartTime string `json:"start_time,omitempty"`
	Status    string `json:"status"`
	ID        int64  `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ImportResponse summarizes an ICS import.
type ImportResponse struct {
	Added    int               `json:"added"`
	Rejected int               `json:"rejected"`
	Results  []ImportResultDTO `json:"results"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse reports the seeds a scenario added and rejected.
type LoadScenarioResponse struct {
	Scenario string            `json:"scenario"`
	Added    int               `json:"added"`
	Rejected []ImportResultDTO `json:"rejected"`
}

// StreamMessage is what GET /api/stream pushes after each commit.
type StreamMessage struct {
	Type    string     `json:"type"`
	Version uint64     `json:"version"`
	At      time.Time  `json:"at"`
	Events  []EventDTO `json:"events"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEventDTO(r event.Record) EventDTO {
	return EventDTO{
		ID:          int64(r.ID),
		Title:       r.Title,
		Date:        r.Day().String(),
		Duration:    string(r.Duration),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Description: r.Description,
	}
}

func toEventDTOs(recs []event.Record) []EventDTO {
	out := make([]EventDTO, len(recs))
	for i, r := range recs {
		out[i] = toEventDTO(r)
	}
	return out
}

func toDayDTOs(groups []schedule.DayGroup) []DayDTO {
	out := make([]DayDTO, len(groups))
	for i, g := range groups {
		out[i] = DayDTO{
			Date:   g.Day.String(),
			AllDay: toEventDTOs(g.AllDay),
			Timed:  toEventDTOs(g.Timed),
		}
	}
	return out
}

// toRecord converts a request into a record dated in loc. An empty
// duration defaults to fixed when a start time is given, all-day otherwise.
func (req EventRequest) toRecord(id event.ID, loc *time.Location) (event.Record, error) {
	day, err := event.ParseDay(strings.TrimSpace(req.Date))
	if err != nil {
		return event.Record{}, &event.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	duration := event.Duration(req.Duration)
	if duration == "" {
		duration = event.AllDay
		if req.StartTime != "" {
			duration = event.Fixed
		}
	}

	return event.Create(event.Draft{
		ID:          id,
		Title:       req.Title,
		Date:        day.Time(loc),
		Duration:    duration,
		StartTime:   strings.TrimSpace(req.StartTime),
		EndTime:     strings.TrimSpace(req.EndTime),
		Description: req.Description,
	}, nil), nil
}
