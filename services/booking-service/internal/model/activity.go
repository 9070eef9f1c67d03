package model

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
)

type Activity struct {
	ID                  string
	OrganizationID      string
	Name                string
	DurationMinutes     int
	Capacity            int
	MinPartySize        int
	MaxPartySize        int
	PricePerPersonCents int64
	Currency            string
	Active              bool
	Config              OperatingConfig
}

// PartySizeBounds returns the per-reservation party size range configured on the activity.
// A max of 0 means the only ceiling is the remaining slot capacity.
func (a Activity) PartySizeBounds() (int, int) {
	min := a.MinPartySize
	if min < 1 {
		min = 1
	}
	max := a.MaxPartySize
	if max < 0 {
		max = 0
	}
	return min, max
}

// OperatingConfig is stored as a JSON document next to the activity row.
type OperatingConfig struct {
	Timezone            string                  `json:"timezone,omitempty"`
	OpenDays            []Weekday               `json:"open_days"`
	OpenTime            string                  `json:"open_time"`
	CloseTime           string                  `json:"close_time"`
	SlotIntervalMinutes int                     `json:"slot_interval_minutes,omitempty"`
	Overrides           map[Weekday]DayOverride `json:"overrides,omitempty"`
	Blocked             []BlockedEntry          `json:"blocked,omitempty"`
}

type DayOverride struct {
	Open    string `json:"open"`
	Close   string `json:"close"`
	Enabled bool   `json:"enabled"`
}

// BlockedEntry without StartTime/EndTime blocks the whole date.
type BlockedEntry struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (b BlockedEntry) WholeDay() bool {
	return b.StartTime == "" && b.EndTime == ""
}

func (c OperatingConfig) IsOpenOn(d Weekday) bool {
	for _, open := range c.OpenDays {
		if open == d {
			return true
		}
	}
	return false
}

// Location resolves the configured IANA zone, UTC when unset.
func (c OperatingConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q", ErrFormat, c.Timezone)
	}
	return loc, nil
}

// Interval returns the slot step, falling back to the activity duration.
func (c OperatingConfig) Interval(durationMinutes int) int {
	if c.SlotIntervalMinutes > 0 {
		return c.SlotIntervalMinutes
	}
	return durationMinutes
}

func (c OperatingConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SlotIntervalMinutes < 0 {
		return fmt.Errorf("%w: slot_interval_minutes must not be negative", ErrFormat)
	}
	for _, d := range c.OpenDays {
		if !d.Valid() {
			return fmt.Errorf("%w: open_days contains %d", ErrFormat, int(d))
		}
	}
	if len(c.OpenDays) > 0 {
		if err := validateHours("default", c.OpenTime, c.CloseTime); err != nil {
			return err
		}
	}
	for day, o := range c.Overrides {
		if !day.Valid() {
			return fmt.Errorf("%w: override for weekday %d", ErrFormat, int(day))
		}
		if !o.Enabled {
			continue
		}
		if err := validateHours(day.String(), o.Open, o.Close); err != nil {
			return err
		}
	}
	for i, b := range c.Blocked {
		if _, err := clock.ParseDate(b.Date); err != nil {
			return fmt.Errorf("blocked[%d]: %w", i, err)
		}
		if b.WholeDay() {
			continue
		}
		if err := validateHours(fmt.Sprintf("blocked[%d]", i), b.StartTime, b.EndTime); err != nil {
			return err
		}
	}
	return nil
}

func validateHours(field, open, close string) error {
	o, err := clock.ParseClock(open)
	if err != nil {
		return fmt.Errorf("%s open: %w", field, err)
	}
	c, err := clock.ParseClock(close)
	if err != nil {
		return fmt.Errorf("%s close: %w", field, err)
	}
	if o >= c {
		return fmt.Errorf("%w: %s open %s must be before close %s", ErrFormat, field, open, close)
	}
	return nil
}
