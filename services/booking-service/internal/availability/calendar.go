package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

type DaySchedule struct {
	Open        bool
	OpenMinute  int
	CloseMinute int
}

// ResolveDay decides whether the activity operates on date and with which hours.
// Precedence: open days, then the weekday override, then the default hours.
// Blocked entries are evaluated per slot, not here.
func ResolveDay(cfg model.OperatingConfig, date time.Time) (DaySchedule, error) {
	weekday := model.WeekdayFromTime(date)
	if !cfg.IsOpenOn(weekday) {
		return DaySchedule{}, nil
	}

	openStr, closeStr := cfg.OpenTime, cfg.CloseTime
	if o, ok := cfg.Overrides[weekday]; ok {
		if !o.Enabled {
			return DaySchedule{}, nil
		}
		openStr, closeStr = o.Open, o.Close
	}

	open, err := clock.ParseClock(openStr)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("%s open time: %w", weekday, err)
	}
	closeMin, err := clock.ParseClock(closeStr)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("%s close time: %w", weekday, err)
	}
	if open >= closeMin {
		return DaySchedule{}, fmt.Errorf("%w: %s opens at %s but closes at %s", model.ErrFormat, weekday, openStr, closeStr)
	}
	return DaySchedule{Open: true, OpenMinute: open, CloseMinute: closeMin}, nil
}
