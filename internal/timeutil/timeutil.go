// Package timeutil converts between establishment wall-clock values and
// absolute instants, and enumerates candidate booking slots.
package timeutil

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone rules must resolve in minimal containers

	"cloud.google.com/go/civil"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

// LoadLocation resolves an IANA zone name, falling back to UTC when the name is
// empty or unknown.
func LoadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ToAbsolute interprets dt as wall-clock time in loc. Offsets come from the
// zone rules in effect on that date; a wall-clock value inside a DST gap is
// shifted forward by the gap length.
func ToAbsolute(dt civil.DateTime, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return dt.In(loc)
}

// ToLocal returns the wall-clock representation of t in loc.
func ToLocal(t time.Time, loc *time.Location) civil.DateTime {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateTimeOf(t.In(loc))
}

// Today returns the local calendar date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	return ToLocal(now, loc).Date
}

// Overlaps is the half-open overlap test used for every conflict decision.
func Overlaps(a, b domain.Window) bool {
	return a.Overlaps(b)
}

// EnumerateSlots yields windows of length duration starting at windowStart and
// advancing by step, ending before any candidate would finish after windowEnd.
// The sequence can be ranged over any number of times.
func EnumerateSlots(windowStart, windowEnd time.Time, step, duration time.Duration) iter.Seq[domain.Window] {
	return func(yield func(domain.Window) bool) {
		if step <= 0 || duration <= 0 {
			return
		}
		for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(step) {
			if !yield(domain.NewWindow(start, duration)) {
				return
			}
		}
	}
}

// ParseClock parses "HH:MM" (or "H:MM") into a civil time of day.
func ParseClock(value string) (civil.Time, error) {
	value = strings.TrimSpace(value)
	hh, mm, ok := strings.Cut(value, ":")
	if !ok {
		return civil.Time{}, fmt.Errorf("timeutil: clock %q must be HH:MM", value)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return civil.Time{}, fmt.Errorf("timeutil: invalid hour in %q", value)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return civil.Time{}, fmt.Errorf("timeutil: invalid minute in %q", value)
	}
	return civil.Time{Hour: h, Minute: m}, nil
}

// FormatClock renders a time of day as zero-padded "HH:MM".
func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ClockOf returns the local "HH:MM" of t in loc.
func ClockOf(t time.Time, loc *time.Location) string {
	return FormatClock(ToLocal(t, loc).Time)
}

// MinutesOfDay converts a time of day into minutes after midnight.
func MinutesOfDay(t civil.Time) int {
	return t.Hour*60 + t.Minute
}
