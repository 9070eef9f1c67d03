package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

var monday = time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "booking.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func kayak(capacity int) model.Activity {
	return model.Activity{
		ID:                  "act-1",
		OrganizationID:      "org-1",
		Name:                "Kayak tour",
		DurationMinutes:     60,
		Capacity:            capacity,
		PricePerPersonCents: 4000,
		Currency:            "eur",
		Active:              true,
		Config: model.OperatingConfig{
			Timezone:  "UTC",
			OpenDays:  []model.Weekday{model.Monday, model.Tuesday, model.Wednesday, model.Thursday, model.Friday},
			OpenTime:  "09:00",
			CloseTime: "17:00",
		},
	}
}

func newServices(t *testing.T, s *Store, now time.Time) (*availability.Service, *booking.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clockFn := func() time.Time { return now }
	s.now = clockFn
	avail := availability.NewService(s, logger, availability.Config{Now: clockFn})

	var mu sync.Mutex
	seq := 0
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	svc := booking.NewService(s, avail, nil, logger, booking.Config{Now: clockFn, NewID: newID})
	return avail, svc
}

func request(email string, party int) booking.Request {
	return booking.Request{
		OrganizationID: "org-1",
		ActivityID:     "act-1",
		Date:           clock.FormatDate(monday),
		StartTime:      "10:00",
		PartySize:      party,
		Customer:       booking.CustomerInfo{Email: email, Name: "Guest"},
	}
}

func TestActivityRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := kayak(4)
	a.Config.Overrides = map[model.Weekday]model.DayOverride{model.Friday: {Open: "12:00", Close: "15:00", Enabled: true}}
	a.Config.Blocked = []model.BlockedEntry{{Date: "2025-06-16", StartTime: "12:00", EndTime: "13:00"}}
	if err := s.SaveActivity(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetActivity(ctx, "org-1", "act-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Capacity != 4 || !got.Active || got.Config.Overrides[model.Friday].Open != "12:00" || len(got.Config.Blocked) != 1 {
		t.Fatalf("activity not preserved: %+v", got)
	}

	if _, err := s.GetActivity(ctx, "org-2", "act-1"); !errors.Is(err, model.ErrActivityNotFound) {
		t.Fatalf("expected other tenant to miss, got %v", err)
	}

	foreign := kayak(10)
	foreign.OrganizationID = "org-2"
	if err := s.SaveActivity(ctx, foreign); !errors.Is(err, model.ErrActivityNotFound) {
		t.Fatalf("expected overwrite by another tenant to fail, got %v", err)
	}
}

func TestConcurrentBookingsRespectCapacity(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveActivity(context.Background(), kayak(5)); err != nil {
		t.Fatalf("save: %v", err)
	}
	avail, svc := newServices(t, s, time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))

	const attempts = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
		other    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Book(context.Background(), request(fmt.Sprintf("guest%d@example.com", i), 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrCapacityExceeded), errors.Is(err, model.ErrSlotUnavailable):
				rejected++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if ok != 5 || rejected != attempts-5 {
		t.Fatalf("expected 5 bookings and %d rejections, got %d/%d", attempts-5, ok, rejected)
	}

	slots, err := avail.GetAvailability(context.Background(), "org-1", "act-1", monday)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	for _, slot := range slots {
		if slot.Start == "10:00" && (slot.Available || slot.RemainingCapacity != 0 || slot.Reason != model.ReasonBooked) {
			t.Fatalf("expected 10:00 to be fully booked, got %+v", slot)
		}
	}
}

func TestCustomerReusedAcrossBookings(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveActivity(context.Background(), kayak(10)); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, svc := newServices(t, s, time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))

	first, err := svc.Book(context.Background(), request("Ada@Example.com", 2))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second, err := svc.Book(context.Background(), request("  ada@example.com ", 1))
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}
	if first.CustomerID != second.CustomerID {
		t.Fatalf("expected customer reuse, got %s and %s", first.CustomerID, second.CustomerID)
	}
	if first.TotalCents != 8000 || first.Currency != "eur" {
		t.Fatalf("unexpected price %d %s", first.TotalCents, first.Currency)
	}
}

func TestPaymentConfirmationAndReplay(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveActivity(context.Background(), kayak(4)); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, svc := newServices(t, s, time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	r, err := svc.Book(context.Background(), request("guest@example.com", 2))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	pc := booking.PaymentConfirmation{Provider: "stripe", EventID: "evt_1", OrganizationID: "org-1", ReservationID: r.ID, PaymentRef: "pi_1"}
	confirmed, err := svc.ConfirmPayment(context.Background(), pc)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.StatusConfirmed || confirmed.PaymentStatus != model.PaymentPaid || confirmed.ConfirmedAt == nil {
		t.Fatalf("unexpected reservation after confirm: %+v", confirmed)
	}
	if _, err := svc.ConfirmPayment(context.Background(), pc); !errors.Is(err, model.ErrDuplicateEvent) {
		t.Fatalf("expected replay to be detected, got %v", err)
	}

	list, err := svc.List(context.Background(), booking.ListFilter{OrganizationID: "org-1", Date: monday})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].PaymentRef != "pi_1" || list[0].Status != model.StatusConfirmed {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestExpirePendingOnlyTouchesPending(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveActivity(context.Background(), kayak(10)); err != nil {
		t.Fatalf("save: %v", err)
	}
	created := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	_, svc := newServices(t, s, created)

	stale, err := svc.Book(context.Background(), request("a@example.com", 2))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	kept, err := svc.Book(context.Background(), request("b@example.com", 2))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), booking.PaymentConfirmation{Provider: "stripe", EventID: "evt-kept", OrganizationID: "org-1", ReservationID: kept.ID}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, later := newServices(t, s, created.Add(20*time.Minute))
	n, err := later.ExpirePending(context.Background(), 15*time.Minute)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired reservation, got %d", n)
	}

	cancelled, err := later.List(context.Background(), booking.ListFilter{OrganizationID: "org-1", Status: model.StatusCancelled})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != stale.ID || cancelled[0].CancelReason != "expired" || cancelled[0].CancelledAt == nil {
		t.Fatalf("unexpected cancelled set %+v", cancelled)
	}

	booked, err := s.ListReservations(context.Background(), "act-1", monday)
	if err != nil {
		t.Fatalf("list reservations: %v", err)
	}
	if len(booked) != 1 || booked[0].ID != kept.ID {
		t.Fatalf("expected only the confirmed reservation to hold capacity, got %+v", booked)
	}
}
