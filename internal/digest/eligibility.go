package digest

import (
	"strconv"
	"strings"
	"time"

	"github.com/studymate/daily-digest/internal/model"
)

// Eligible reports whether the record should be sent at now. All comparisons
// are in UTC.
//
//   - Disabled records are never eligible.
//   - No preferred time: eligible every hour.
//   - Otherwise eligible during the preferred hour and the hour before it,
//     unless a digest already went out for this window (see SentForWindow).
//   - A preferred time whose hour does not parse is never eligible.
func Eligible(s model.Schedule, now time.Time) bool {
	if !s.EmailEnabled {
		return false
	}
	if !s.HasPreferredTime() {
		return true
	}

	hour, ok := PreferredHour(*s.PreferredTime)
	if !ok {
		return false
	}

	now = now.UTC()
	if !InWindow(hour, now.Hour()) {
		return false
	}

	return !SentForWindow(s.LastEmailSent, WindowAt(hour, now))
}

// PreferredHour extracts the hour from an "HH:MM" string. ok is false when
// the hour is not an integer in [0, 23].
func PreferredHour(preferred string) (int, bool) {
	h, _, _ := strings.Cut(strings.TrimSpace(preferred), ":")
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

// InWindow reports whether current is the preferred hour or the grace hour
// immediately before it, wrapping at midnight (preferred 0 → grace 23).
func InWindow(preferred, current int) bool {
	grace := (preferred + 23) % 24
	return current == preferred || current == grace
}

// WindowAt returns the preferred-hour instant of the window containing now.
// For a grace hour that falls before midnight (preferred 0, now 23:xx) the
// window belongs to the next day. Only meaningful when InWindow holds.
func WindowAt(preferred int, now time.Time) time.Time {
	now = now.UTC()
	at := now.Truncate(24 * time.Hour).Add(time.Duration(preferred) * time.Hour)
	if now.Hour() != preferred && at.Before(now) {
		at = at.Add(24 * time.Hour)
	}
	return at
}

// SentForWindow reports whether lastSent already covers the window whose
// preferred hour is at. That is any send from the grace hour onwards, or any
// send on the window's UTC calendar day.
func SentForWindow(lastSent *time.Time, at time.Time) bool {
	if lastSent == nil {
		return false
	}
	return !lastSent.Before(at.Add(-time.Hour)) || SentOnDay(lastSent, at)
}

// SentOnDay reports whether lastSent falls on the same UTC calendar day as now.
func SentOnDay(lastSent *time.Time, now time.Time) bool {
	if lastSent == nil {
		return false
	}
	ly, lm, ld := lastSent.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ly == ny && lm == nm && ld == nd
}
