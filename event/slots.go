package event

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// SLOT LABELS - The fixed 24-value hourly enumeration ("H:00 AM/PM")
// =============================================================================

// SlotCount is the number of hourly slots in a day.
const SlotCount = 24

// MinutesPerDay is the clock value of the end-of-day label.
const MinutesPerDay = 24 * 60

var slotLabels = func() [SlotCount]string {
	var labels [SlotCount]string
	for i := 0; i < SlotCount; i++ {
		labels[i] = hourLabel(i)
	}
	return labels
}()

func hourLabel(hour int) string {
	h := hour % 12
	if h == 0 {
		h = 12
	}
	period := "AM"
	if hour%24 >= 12 {
		period = "PM"
	}
	return fmt.Sprintf("%d:00 %s", h, period)
}

// Slot is one entry of the hourly enumeration.
type Slot struct {
	Index     int
	StartTime string
	EndTime   string
}

// Slots returns the 24 hourly slots. Slot i starts at hour i and ends at
// hour i+1; the last slot ends at "12:00 AM".
func Slots() []Slot {
	out := make([]Slot, SlotCount)
	for i := range out {
		out[i] = Slot{Index: i, StartTime: slotLabels[i], EndTime: hourLabel(i + 1)}
	}
	return out
}

// SlotLabel returns the start label of slot i.
func SlotLabel(i int) (string, bool) {
	if i < 0 || i >= SlotCount {
		return "", false
	}
	return slotLabels[i], true
}

// SlotIndex returns the index of a start label in the hourly enumeration.
func SlotIndex(label string) (int, bool) {
	for i, l := range slotLabels {
		if l == label {
			return i, true
		}
	}
	return -1, false
}

// IsSlotLabel reports whether label is one of the 24 hourly start labels.
func IsSlotLabel(label string) bool {
	_, ok := SlotIndex(label)
	return ok
}

// ParseClock converts an "H:MM AM/PM" label to minutes after midnight.
// "12:00 AM" is 0; callers treating it as an end label use EndMinutes.
func ParseClock(label string) (int, error) {
	timePart, period, ok := strings.Cut(strings.TrimSpace(label), " ")
	if !ok {
		return 0, fmt.Errorf("time label %q: missing AM/PM", label)
	}
	hh, mm, ok := strings.Cut(timePart, ":")
	if !ok || len(mm) != 2 {
		return 0, fmt.Errorf("time label %q: want H:MM", label)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 1 || hours > 12 {
		return 0, fmt.Errorf("time label %q: bad hour", label)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("time label %q: bad minutes", label)
	}

	switch period {
	case "AM":
		if hours == 12 {
			hours = 0
		}
	case "PM":
		if hours != 12 {
			hours += 12
		}
	default:
		return 0, fmt.Errorf("time label %q: period must be AM or PM", label)
	}
	return hours*60 + minutes, nil
}

// EndMinutes is ParseClock for end labels: "12:00 AM" means end of day.
func EndMinutes(label string) (int, error) {
	m, err := ParseClock(label)
	if err != nil {
		return 0, err
	}
	if m == 0 {
		return MinutesPerDay, nil
	}
	return m, nil
}

// ClockLabel formats minutes after midnight as "H:MM AM/PM".
func ClockLabel(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	hour, mins := minutes/60, minutes%60
	h := hour % 12
	if h == 0 {
		h = 12
	}
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", h, mins, period)
}

// CompareStart orders records the way a day column lists them: all-day
// records first, then by start slot, then by ID.
func CompareStart(a, b Record) int {
	if a.IsFixed() != b.IsFixed() {
		if !a.IsFixed() {
			return -1
		}
		return 1
	}
	if a.IsFixed() {
		ai, _ := SlotIndex(a.StartTime)
		bi, _ := SlotIndex(b.StartTime)
		if ai != bi {
			return ai - bi
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
