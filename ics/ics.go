// Package ics converts event records to and from iCalendar (RFC 5545).
//
// Export writes one VEVENT per record. Fixed events carry UTC DTSTART and
// DTEND built from their slot labels; all-day events use VALUE=DATE with an
// exclusive DTEND on the next day. UIDs are derived from the record ID so a
// re-export of the same record keeps its UID.
//
// Import maps VEVENTs back to drafts: timed starts are snapped down to their
// hourly slot, end labels keep minute precision and are clamped to the end
// of the start day. VEVENTs without a summary or a usable DTSTART are
// logged and skipped.
package ics

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/internal/log"
)

const productID = "calendar-engine"

// uidNamespace scopes the name-based UUIDs used as VEVENT UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:calendar-engine:event"))

// propEventID carries the record ID so an export can be matched back up.
var propEventID = ical.ComponentPropertyExtended("X-CALENDAR-ENGINE-ID")

// UID returns the stable VEVENT UID for a record ID.
func UID(id event.ID) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatInt(int64(id), 10))).String() + "@" + productID
}

// =============================================================================
// EXPORT
// =============================================================================

// Encode writes records as a VCALENDAR. Dates are interpreted in loc.
func Encode(w io.Writer, records []event.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendarFor(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("Events")
	cal.SetXWRTimezone(loc.String())

	stamp := time.Now()
	for _, rec := range records {
		if err := addEvent(cal, rec, loc, stamp); err != nil {
			return fmt.Errorf("event %d: %w", rec.ID, err)
		}
	}
	return cal.SerializeTo(w)
}

func addEvent(cal *ical.Calendar, rec event.Record, loc *time.Location, stamp time.Time) error {
	ev := cal.AddEvent(UID(rec.ID))
	ev.SetDtStampTime(stamp)
	ev.SetSummary(rec.Title)
	if rec.Description != "" {
		ev.SetDescription(rec.Description)
	}
	ev.SetProperty(propEventID, strconv.FormatInt(int64(rec.ID), 10))

	midnight := rec.Day().Time(loc)
	if !rec.IsFixed() {
		ev.SetAllDayStartAt(midnight)
		ev.SetAllDayEndAt(midnight.AddDate(0, 0, 1))
		return nil
	}

	start, err := event.ParseClock(rec.StartTime)
	if err != nil {
		return err
	}
	end, err := event.EndMinutes(rec.EndTime)
	if err != nil {
		return err
	}
	ev.SetStartAt(wallClock(midnight, start))
	ev.SetEndAt(wallClock(midnight, end))
	return nil
}

// wallClock returns the instant minutes after midnight by the clock on the
// wall, so a DST change earlier that day does not shift it. MinutesPerDay is
// the next midnight.
func wallClock(midnight time.Time, minutes int) time.Time {
	if minutes >= event.MinutesPerDay {
		return midnight.AddDate(0, 0, 1)
	}
	y, m, d := midnight.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, midnight.Location())
}

// =============================================================================
// IMPORT
// =============================================================================

// Decode parses a VCALENDAR into drafts with dates in loc. Draft IDs are
// left zero; the store assigns them.
func Decode(r io.Reader, loc *time.Location) ([]event.Draft, error) {
	if loc == nil {
		loc = time.UTC
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var drafts []event.Draft
	for _, ve := range cal.Events() {
		d, err := draftFrom(ve, loc)
		if err != nil {
			log.Warn("ics vevent skipped", "uid", ve.Id(), "err", err)
			continue
		}
		drafts = append(drafts, d)
	}
	log.Info("ics decode completed", "events", len(drafts))
	return drafts, nil
}

func draftFrom(ve *ical.VEvent, loc *time.Location) (event.Draft, error) {
	var d event.Draft

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		d.Title = strings.TrimSpace(p.Value)
	}
	if d.Title == "" {
		return d, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		d.Description = p.Value
	}

	if isAllDay(ve) {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return d, err
		}
		d.Date = civilMidnight(start, loc)
		d.Duration = event.AllDay
		return d, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return d, err
	}
	start = start.In(loc)
	d.Date = civilMidnight(start, loc)
	d.Duration = event.Fixed

	slot, _ := event.SlotLabel(start.Hour())
	d.StartTime = slot
	slotStart := start.Hour() * 60

	endMin := slotStart + 60
	if end, err := ve.GetEndAt(); err == nil {
		end = end.In(loc)
		switch {
		case event.DayOf(end) != event.DayOf(start):
			endMin = event.MinutesPerDay
		default:
			endMin = end.Hour()*60 + end.Minute()
		}
	}
	if endMin < slotStart {
		endMin = slotStart
	}
	d.EndTime = event.ClockLabel(endMin)
	return d, nil
}

// isAllDay reports whether DTSTART is a DATE rather than a DATE-TIME.
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], string(ical.ValueDataTypeDate)) {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func civilMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
