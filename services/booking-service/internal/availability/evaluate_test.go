package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

func reservation(start, end, party int, status model.Status) model.Reservation {
	return model.Reservation{
		Date:        monday,
		StartMinute: start,
		EndMinute:   end,
		PartySize:   party,
		Status:      status,
	}
}

func TestEvaluate_CapacityCountsOverlappingReservations(t *testing.T) {
	now := monday.AddDate(0, 0, -1)
	in := EvaluationInput{
		Slot:     Span{Start: 600, End: 660},
		Date:     monday,
		Capacity: 6,
		Now:      now,
		Reservations: []model.Reservation{
			reservation(600, 660, 2, model.StatusConfirmed),
			reservation(630, 690, 1, model.StatusPending),
			reservation(660, 720, 3, model.StatusConfirmed), // touches, does not overlap
			reservation(600, 660, 4, model.StatusCancelled), // released
			reservation(540, 600, 5, model.StatusConfirmed), // touches from the left
			reservation(590, 610, 1, model.StatusCheckedIn),
		},
	}
	ev := Evaluate(in)
	if !ev.Available || ev.RemainingCapacity != 2 {
		t.Fatalf("expected 2 remaining, got %+v", ev)
	}
}

func TestEvaluate_FullSlotIsBooked(t *testing.T) {
	ev := Evaluate(EvaluationInput{
		Slot:         Span{Start: 600, End: 660},
		Date:         monday,
		Capacity:     4,
		Now:          monday.AddDate(0, 0, -1),
		Reservations: []model.Reservation{reservation(600, 660, 4, model.StatusConfirmed)},
	})
	if ev.Available || ev.Reason != model.ReasonBooked || ev.RemainingCapacity != 0 {
		t.Fatalf("expected booked with 0 remaining, got %+v", ev)
	}
}

func TestEvaluate_BlockedWinsOverPastAndBooked(t *testing.T) {
	ev := Evaluate(EvaluationInput{
		Slot:         Span{Start: 720, End: 780},
		Date:         monday,
		Capacity:     1,
		Now:          monday.AddDate(0, 0, 2),
		Reservations: []model.Reservation{reservation(720, 780, 1, model.StatusConfirmed)},
		Blocked:      []model.BlockedEntry{{Date: "2025-06-16", StartTime: "12:00", EndTime: "13:00"}},
	})
	if ev.Reason != model.ReasonBlocked {
		t.Fatalf("expected blocked, got %+v", ev)
	}
}

func TestEvaluate_PartialBlockOnlyAffectsOverlappingSlots(t *testing.T) {
	blocked := []model.BlockedEntry{
		{Date: "2025-06-16", StartTime: "13:00", EndTime: "14:00"},
		{Date: "2025-06-17"},
	}
	now := monday.AddDate(0, 0, -1)
	cases := []struct {
		slot Span
		want model.SlotReason
	}{
		{Span{Start: 720, End: 780}, model.ReasonNone},    // 12:00-13:00
		{Span{Start: 750, End: 810}, model.ReasonBlocked}, // 12:30-13:30
		{Span{Start: 780, End: 840}, model.ReasonBlocked}, // 13:00-14:00
		{Span{Start: 840, End: 900}, model.ReasonNone},    // 14:00-15:00
	}
	for _, c := range cases {
		ev := Evaluate(EvaluationInput{Slot: c.slot, Date: monday, Capacity: 2, Now: now, Blocked: blocked})
		if ev.Reason != c.want {
			t.Fatalf("slot %+v: expected reason %q, got %+v", c.slot, c.want, ev)
		}
	}

	tuesday := monday.AddDate(0, 0, 1)
	ev := Evaluate(EvaluationInput{Slot: Span{Start: 540, End: 600}, Date: tuesday, Capacity: 2, Now: now, Blocked: blocked})
	if ev.Reason != model.ReasonBlocked {
		t.Fatalf("expected whole-day block, got %+v", ev)
	}
}

func TestEvaluate_PastCutoff(t *testing.T) {
	now := monday.Add(10*time.Hour + 15*time.Minute) // Monday 10:15

	cases := []struct {
		name string
		date time.Time
		slot Span
		lead time.Duration
		past bool
	}{
		{"yesterday", monday.AddDate(0, 0, -1), Span{Start: 900, End: 960}, 0, true},
		{"earlier today", monday, Span{Start: 600, End: 660}, 0, true},
		{"starting now", monday, Span{Start: 615, End: 675}, 0, false},
		{"later today", monday, Span{Start: 660, End: 720}, 0, false},
		{"tomorrow", monday.AddDate(0, 0, 1), Span{Start: 0, End: 60}, 0, false},
		{"inside lead time", monday, Span{Start: 660, End: 720}, time.Hour, true},
		{"after lead time", monday, Span{Start: 720, End: 780}, time.Hour, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ev := Evaluate(EvaluationInput{Slot: c.slot, Date: c.date, Capacity: 1, Now: now, LeadTime: c.lead})
			if got := ev.Reason == model.ReasonPast; got != c.past {
				t.Fatalf("expected past=%v, got %+v", c.past, ev)
			}
		})
	}
}

func TestEvaluate_SlotStartedSecondsAgoIsPast(t *testing.T) {
	now := monday.Add(10*time.Hour + 45*time.Second)
	ev := Evaluate(EvaluationInput{Slot: Span{Start: 600, End: 660}, Date: monday, Capacity: 1, Now: now})
	if ev.Reason != model.ReasonPast {
		t.Fatalf("expected 10:00 slot to be past at 10:00:45, got %+v", ev)
	}
	ev = Evaluate(EvaluationInput{Slot: Span{Start: 600, End: 660}, Date: monday, Capacity: 1, Now: monday.Add(10 * time.Hour)})
	if !ev.Available {
		t.Fatalf("expected 10:00 slot to stay bookable at exactly 10:00, got %+v", ev)
	}
}

func TestEvaluate_LeadTimeCrossesMidnight(t *testing.T) {
	now := monday.Add(23*time.Hour + 30*time.Minute)
	tuesday := monday.AddDate(0, 0, 1)
	ev := Evaluate(EvaluationInput{Slot: Span{Start: 0, End: 30}, Date: tuesday, Capacity: 1, Now: now, LeadTime: time.Hour})
	if ev.Reason != model.ReasonPast {
		t.Fatalf("expected tomorrow 00:00 to fall inside the lead time, got %+v", ev)
	}
	ev = Evaluate(EvaluationInput{Slot: Span{Start: 30, End: 60}, Date: tuesday, Capacity: 1, Now: now, LeadTime: time.Hour})
	if !ev.Available {
		t.Fatalf("expected tomorrow 00:30 to be available, got %+v", ev)
	}
}
