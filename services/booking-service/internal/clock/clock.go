// Package clock converts between wall-clock strings, civil dates and minute offsets from midnight.
package clock

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinutesPerDay = 24 * 60

	DateLayout = "2006-01-02"
)

var ErrFormat = errors.New("malformed input")

// ParseClock converts "HH:MM" into minutes after midnight.
// "24:00" is accepted as the end of the day and yields MinutesPerDay.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: clock %q", ErrFormat, s)
	}
	h, ok1 := twoDigits(s[0], s[1])
	m, ok2 := twoDigits(s[3], s[4])
	if !ok1 || !ok2 || m > 59 {
		return 0, fmt.Errorf("%w: clock %q", ErrFormat, s)
	}
	if h == 24 && m == 0 {
		return MinutesPerDay, nil
	}
	if h > 23 {
		return 0, fmt.Errorf("%w: clock %q", ErrFormat, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
// Values outside [0, MinutesPerDay) wrap modulo one day, so 1440 renders as "00:00" and -60 as "23:00".
func FormatClock(minutes int) string {
	m := ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseDate parses a civil date and returns it as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrFormat, s)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CivilDate drops the clock part of t, keeping the calendar date as seen in t's location.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatEndClock renders the exclusive end of a span. Exactly MinutesPerDay is "24:00".
func FormatEndClock(minutes int) string {
	if minutes == MinutesPerDay {
		return "24:00"
	}
	return FormatClock(minutes)
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
