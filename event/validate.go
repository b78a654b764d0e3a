package event

import (
	"strings"
)

// Validate checks the structural invariants of a single record. The
// cross-record slot rule is not checked here.
func Validate(r Record) error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}

	switch r.Duration {
	case AllDay:
		if r.StartTime != "" || r.EndTime != "" {
			return &ValidationError{Field: "start_time", Reason: "all-day events have no start or end time"}
		}
		return nil
	case Fixed:
		return validateTimePair(r.StartTime, r.EndTime)
	default:
		return &ValidationError{Field: "duration", Reason: "must be \"fixed\" or \"day\""}
	}
}

func validateTimePair(start, end string) error {
	if start == "" {
		return &ValidationError{Field: "start_time", Reason: "is required for fixed events"}
	}
	if end == "" {
		return &ValidationError{Field: "end_time", Reason: "is required for fixed events"}
	}
	if !IsSlotLabel(start) {
		return &ValidationError{Field: "start_time", Reason: "must be an hourly slot like \"9:00 AM\""}
	}

	startMin, _ := ParseClock(start)
	endMin, err := EndMinutes(end)
	if err != nil {
		return &ValidationError{Field: "end_time", Reason: err.Error()}
	}
	if endMin < startMin {
		return &ValidationError{Field: "end_time", Reason: "must not be before start_time"}
	}
	return nil
}
