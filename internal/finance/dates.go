package finance

import (
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02/01/06",
}

// ParseDate accepts the textual date formats users (and the model)
// produce. Two-digit years are read as 20xx via the 02/01/06 layout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("ParseDate: empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ParseDate: unrecognized date %q", s)
}

// EndOfDay pushes a date to the last representable instant of its day
// so range filters include the whole end date.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, t.Location())
}

// StartOfDay truncates to midnight.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfMonth truncates to the first of the month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// PeriodWindow resolves a named relative period to a start instant.
// "all" returns ok=false meaning no lower bound.
func PeriodWindow(period string, now time.Time) (start time.Time, ok bool) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "day", "dia", "daily", "diario", "diário":
		return StartOfDay(now), true
	case "week", "semana", "weekly", "semanal":
		return now.AddDate(0, 0, -7), true
	case "all", "tudo", "total":
		return time.Time{}, false
	default:
		// Month is the default reading for spending questions.
		return StartOfMonth(now), true
	}
}

// ParseRange turns explicit start/end strings into an inclusive window.
// An end before the start is a user error, not something to fix quietly.
func ParseRange(startStr, endStr string) (start, end time.Time, err error) {
	start, err = ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("ParseRange: start: %w", err)
	}
	end, err = ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("ParseRange: end: %w", err)
	}
	end = EndOfDay(end)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("ParseRange: end date before start date")
	}
	return StartOfDay(start), end, nil
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
