/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built data sets that populate the store with realistic
  events. Seeds go through Store.Add, so they obey every rule a client
  write does: the "conflicts" scenario exists to show which seeds the
  slot rule rejects.

AVAILABLE SCENARIOS:
  workweek:   Standups, lunches and focus blocks across the current week
  conflicts:  A busy day where several seeds target taken slots
  empty:      Nothing; clears the store

HOW SCENARIOS WORK:
  1. Clear the store (IDs keep counting up)
  2. Build seed records anchored on the current week
  3. Add each seed, collecting the ones that were rejected

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "conflicts"}

NOTE:
  Scenarios clear the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: addSeed, shared with ICS import
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/internal/log"
)

// ErrUnknownScenario is returned for a scenario ID that is not listed.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "workweek",
		Name:        "Work Week",
		Description: "Daily standups, lunches and focus blocks for the current week",
	},
	{
		ID:          "conflicts",
		Name:        "Slot Conflicts",
		Description: "A crowded Monday where some seeds collide with taken slots",
	},
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "No events",
	},
}

var scenarioSeeds = map[string]func(week time.Time) []event.Record{
	"workweek":  workweekSeeds,
	"conflicts": conflictSeeds,
	"empty":     func(time.Time) []event.Record { return nil },
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario clears the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.SeedScenario(r.Context(), req.ScenarioID)
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SeedScenario clears the store and adds the scenario's seeds, anchored on
// the current week in the store's timezone.
func (h *Handler) SeedScenario(ctx context.Context, id string) (LoadScenarioResponse, error) {
	seeds, ok := scenarioSeeds[id]
	if !ok {
		return LoadScenarioResponse{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	if err := h.Store.Clear(ctx); err != nil {
		return LoadScenarioResponse{}, err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	week := event.StartOfWeek(time.Now().In(h.loc()))
	resp := LoadScenarioResponse{Scenario: id, Rejected: []ImportResultDTO{}}
	for _, rec := range seeds(week) {
		res := h.addSeed(ctx, rec)
		switch res.Status {
		case ImportAdded:
			resp.Added++
		case ImportFailed:
			return resp, fmt.Errorf("seed %q: %s", rec.Title, res.Error)
		default:
			resp.Rejected = append(resp.Rejected, res)
		}
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	log.Info("scenario loaded", "scenario", id, "added", resp.Added, "rejected", len(resp.Rejected))
	return resp, nil
}

// =============================================================================
// SEEDS
// =============================================================================

func seedFixed(title string, date time.Time, start, end, desc string) event.Record {
	return event.Record{
		Title:       title,
		Date:        date,
		Duration:    event.Fixed,
		StartTime:   start,
		EndTime:     end,
		Description: desc,
	}
}

func seedAllDay(title string, date time.Time, desc string) event.Record {
	return event.Record{Title: title, Date: date, Duration: event.AllDay, Description: desc}
}

func workweekSeeds(week time.Time) []event.Record {
	var recs []event.Record
	for i := 0; i < 5; i++ {
		day := week.AddDate(0, 0, i)
		recs = append(recs,
			seedFixed("Standup", day, "9:00 AM", "9:15 AM", "Daily sync"),
			seedFixed("Lunch", day, "12:00 PM", "1:00 PM", ""),
		)
	}

	recs = append(recs,
		seedFixed("Focus block", week, "10:00 AM", "12:00 PM", "No meetings"),
		seedFixed("Focus block", week.AddDate(0, 0, 2), "2:00 PM", "5:00 PM", "No meetings"),
		seedFixed("1:1 with manager", week.AddDate(0, 0, 1), "3:00 PM", "3:30 PM", ""),
		seedFixed("Sprint review", week.AddDate(0, 0, 4), "4:00 PM", "5:00 PM", ""),
		seedAllDay("Release day", week.AddDate(0, 0, 3), "Ship it"),
		seedFixed("Dinner", week.AddDate(0, 0, 4), "7:00 PM", "9:30 PM", "Team dinner"),
		seedAllDay("Hiking", week.AddDate(0, 0, 5), ""),
		seedFixed("Late call", week.AddDate(0, 0, 6), "11:00 PM", "12:00 AM", "Across time zones"),
	)
	return recs
}

// conflictSeeds collide on purpose: every second "9:00 AM" seed is
// rejected, all-day seeds never are.
func conflictSeeds(week time.Time) []event.Record {
	return []event.Record{
		seedFixed("Standup", week, "9:00 AM", "9:30 AM", ""),
		seedFixed("Customer call", week, "9:00 AM", "10:00 AM", "Double-booked"),
		seedAllDay("Conference", week, ""),
		seedAllDay("Office closed", week, ""),
		seedFixed("Design review", week, "11:00 AM", "12:00 PM", ""),
		seedFixed("Design review (moved)", week, "11:00 AM", "11:30 AM", "Same slot"),
		seedFixed("Standup", week.AddDate(0, 0, 1), "9:00 AM", "9:30 AM", "Same slot, next day"),
		seedFixed("Broken", week, "9:30 AM", "10:00 AM", "Not an hourly slot"),
	}
}
