package availability

import (
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

type EvaluationInput struct {
	Slot         Span
	Date         time.Time
	Reservations []model.Reservation
	Blocked      []model.BlockedEntry
	Capacity     int
	// Now must already be expressed in the activity's location.
	Now time.Time
	// LeadTime pushes the past cutoff forward; zero means a slot is bookable until it starts.
	LeadTime time.Duration
}

type Evaluation struct {
	Available         bool
	Reason            model.SlotReason
	RemainingCapacity int
}

// Evaluate applies the checks in order blocked, past, capacity. The first failing check wins.
func Evaluate(in EvaluationInput) Evaluation {
	if isBlocked(in.Slot, in.Date, in.Blocked) {
		return Evaluation{Reason: model.ReasonBlocked}
	}
	if isPast(in.Slot, in.Date, in.Now, in.LeadTime) {
		return Evaluation{Reason: model.ReasonPast}
	}

	remaining := in.Capacity - BookedPartySize(in.Slot, in.Date, in.Reservations)
	if remaining <= 0 {
		return Evaluation{Reason: model.ReasonBooked}
	}
	return Evaluation{Available: true, RemainingCapacity: remaining}
}

// BookedPartySize sums party sizes of reservations that still hold capacity and overlap slot on date.
func BookedPartySize(slot Span, date time.Time, reservations []model.Reservation) int {
	total := 0
	for _, r := range reservations {
		if !r.Status.CountsAgainstCapacity() {
			continue
		}
		if !r.Date.IsZero() && !clock.CivilDate(r.Date).Equal(date) {
			continue
		}
		if Overlaps(slot, Span{Start: r.StartMinute, End: r.EndMinute}) {
			total += r.PartySize
		}
	}
	return total
}

func isBlocked(slot Span, date time.Time, entries []model.BlockedEntry) bool {
	day := clock.FormatDate(date)
	for _, b := range entries {
		if b.Date != day {
			continue
		}
		if b.WholeDay() {
			return true
		}
		start, err1 := clock.ParseClock(b.StartTime)
		end, err2 := clock.ParseClock(b.EndTime)
		if err1 != nil || err2 != nil {
			// Unreadable block on this date: fail closed.
			return true
		}
		if Overlaps(slot, Span{Start: start, End: end}) {
			return true
		}
	}
	return false
}

// isPast compares the slot's start instant in now's location against now plus lead.
func isPast(slot Span, date, now time.Time, lead time.Duration) bool {
	if lead < 0 {
		lead = 0
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, slot.Start, 0, 0, now.Location())
	return start.Before(now.Add(lead))
}
