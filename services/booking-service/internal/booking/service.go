package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const expireBatchSize = 100

// Availability is the read path the booking transaction re-validates against.
type Availability interface {
	Snapshot(ctx context.Context, organizationID, activityID string, date time.Time) (model.Activity, []model.TimeSlot, error)
}

// Notifier delivers reservation events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, evt model.ReservationEvent) error
}

type Request struct {
	OrganizationID string
	ActivityID     string
	Date           string
	StartTime      string
	PartySize      int
	Customer       CustomerInfo
}

type CustomerInfo struct {
	Email string
	Name  string
	Phone string
}

// PaymentConfirmation is the payment collaborator's success signal.
type PaymentConfirmation struct {
	Provider       string
	EventID        string
	OrganizationID string
	ReservationID  string
	// AmountCents of 0 means the full total was captured.
	AmountCents int64
	PaymentRef  string
}

type Config struct {
	NotifyTimeout time.Duration
	Now           func() time.Time
	NewID         func() string
}

type Service struct {
	store         Store
	availability  Availability
	notifier      Notifier
	logger        *slog.Logger
	notifyTimeout time.Duration
	now           func() time.Time
	newID         func() string

	inflight sync.WaitGroup
}

func NewService(store Store, availability Availability, notifier Notifier, logger *slog.Logger, cfg Config) *Service {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		store:         store,
		availability:  availability,
		notifier:      notifier,
		logger:        logger,
		notifyTimeout: cfg.NotifyTimeout,
		now:           cfg.Now,
		newID:         cfg.NewID,
	}
}

// Book validates the requested slot against fresh availability and persists a pending reservation.
func (s *Service) Book(ctx context.Context, req Request) (model.Reservation, error) {
	ctx, span := otel.Tracer("booking").Start(ctx, "booking.book",
		trace.WithAttributes(
			attribute.String("activity.id", req.ActivityID),
			attribute.String("date", req.Date),
			attribute.String("start_time", req.StartTime),
			attribute.Int("party_size", req.PartySize),
		),
	)
	defer span.End()

	r, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Reservation{}, err
	}
	span.SetAttributes(attribute.String("reservation.id", r.ID))
	s.logger.Info("reservation created",
		"reservation_id", r.ID,
		"organization_id", r.OrganizationID,
		"activity_id", r.ActivityID,
		"date", clock.FormatDate(r.Date),
		"start", r.StartTime(),
		"party_size", r.PartySize,
	)
	return r, nil
}

func (s *Service) book(ctx context.Context, req Request) (model.Reservation, error) {
	date, err := clock.ParseDate(req.Date)
	if err != nil {
		return model.Reservation{}, err
	}
	start, err := clock.ParseClock(req.StartTime)
	if err != nil {
		return model.Reservation{}, err
	}
	email := model.NormalizeEmail(req.Customer.Email)
	if email == "" {
		return model.Reservation{}, fmt.Errorf("%w: customer email is required", model.ErrFormat)
	}
	if req.PartySize < 1 {
		return model.Reservation{}, fmt.Errorf("%w: party size %d", model.ErrInvalidPartySize, req.PartySize)
	}

	activity, slots, err := s.availability.Snapshot(ctx, req.OrganizationID, req.ActivityID, date)
	if err != nil {
		return model.Reservation{}, err
	}
	min, max := activity.PartySizeBounds()
	if req.PartySize < min || (max > 0 && req.PartySize > max) {
		return model.Reservation{}, fmt.Errorf("%w: party size %d outside %d..%d", model.ErrInvalidPartySize, req.PartySize, min, max)
	}

	slot, ok := findSlot(slots, start)
	if !ok {
		return model.Reservation{}, fmt.Errorf("%w: %s on %s", model.ErrSlotNotFound, req.StartTime, req.Date)
	}
	if !slot.Available {
		return model.Reservation{}, &model.SlotUnavailableError{Start: slot.Start, Reason: slot.Reason}
	}
	if slot.RemainingCapacity < req.PartySize {
		return model.Reservation{}, fmt.Errorf("%w: %d requested, %d remaining", model.ErrCapacityExceeded, req.PartySize, slot.RemainingCapacity)
	}

	now := s.now().UTC()
	r := model.Reservation{
		ID:             s.newID(),
		OrganizationID: req.OrganizationID,
		ActivityID:     activity.ID,
		Date:           date,
		StartMinute:    start,
		PartySize:      req.PartySize,
		Status:         model.StatusPending,
		PaymentStatus:  model.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockActivity(ctx, req.OrganizationID, req.ActivityID)
		if err != nil {
			return err
		}
		if !locked.Active {
			return &model.SlotUnavailableError{Start: slot.Start, Reason: model.ReasonClosed}
		}
		r.EndMinute = start + locked.DurationMinutes
		r.TotalCents = locked.PricePerPersonCents * int64(req.PartySize)
		r.Currency = locked.Currency

		booked, err := tx.BookedPartySize(ctx, locked.ID, date, r.StartMinute, r.EndMinute)
		if err != nil {
			return err
		}
		if booked+req.PartySize > locked.Capacity {
			return fmt.Errorf("%w: %d requested, %d remaining", model.ErrCapacityExceeded, req.PartySize, locked.Capacity-booked)
		}

		customer, err := tx.UpsertCustomer(ctx, model.Customer{
			ID:             s.newID(),
			OrganizationID: req.OrganizationID,
			Email:          email,
			Name:           req.Customer.Name,
			Phone:          req.Customer.Phone,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		r.CustomerID = customer.ID
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		return model.Reservation{}, persistence("book", err)
	}
	return r, nil
}

// ConfirmPayment moves a pending reservation to confirmed once the payment collaborator reports success.
// Replayed provider events return model.ErrDuplicateEvent and change nothing.
func (s *Service) ConfirmPayment(ctx context.Context, pc PaymentConfirmation) (model.Reservation, error) {
	ctx, span := otel.Tracer("booking").Start(ctx, "booking.confirm_payment",
		trace.WithAttributes(
			attribute.String("reservation.id", pc.ReservationID),
			attribute.String("payment.provider", pc.Provider),
		),
	)
	defer span.End()

	var (
		r       model.Reservation
		changed bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if pc.EventID != "" {
			if err := tx.RecordPaymentEvent(ctx, pc.Provider, pc.EventID); err != nil {
				return err
			}
		}
		current, err := tx.GetReservationForUpdate(ctx, pc.OrganizationID, pc.ReservationID)
		if err != nil {
			return err
		}
		r = current
		switch current.Status {
		case model.StatusConfirmed, model.StatusCheckedIn, model.StatusCompleted:
			return nil
		case model.StatusPending:
		default:
			return fmt.Errorf("%w: cannot confirm %s reservation", model.ErrInvalidTransition, current.Status)
		}

		now := s.now().UTC()
		r.Status = model.StatusConfirmed
		r.PaymentStatus = model.PaymentPaid
		if pc.AmountCents > 0 && pc.AmountCents < r.TotalCents {
			r.PaymentStatus = model.PaymentPartial
		}
		if pc.PaymentRef != "" {
			r.PaymentRef = pc.PaymentRef
		}
		r.ConfirmedAt = &now
		r.UpdatedAt = now
		changed = true
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		if !errors.Is(err, model.ErrDuplicateEvent) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return model.Reservation{}, persistence("confirm payment", err)
	}
	if changed {
		s.logger.Info("reservation confirmed", "reservation_id", r.ID, "payment_status", r.PaymentStatus)
		s.dispatch(ctx, model.EventReservationConfirmed, r, "")
	}
	return r, nil
}

// Cancel releases the reservation's capacity. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, organizationID, reservationID, reason string) (model.Reservation, error) {
	return s.transition(ctx, organizationID, reservationID, model.StatusCancelled, reason)
}

// UpdateStatus applies a staff driven lifecycle change such as check-in or no-show.
// Confirmation only comes from ConfirmPayment.
func (s *Service) UpdateStatus(ctx context.Context, organizationID, reservationID string, status model.Status) (model.Reservation, error) {
	if status == model.StatusConfirmed {
		return model.Reservation{}, fmt.Errorf("%w: confirmation requires a payment", model.ErrInvalidTransition)
	}
	return s.transition(ctx, organizationID, reservationID, status, "")
}

func (s *Service) transition(ctx context.Context, organizationID, reservationID string, next model.Status, reason string) (model.Reservation, error) {
	var (
		r       model.Reservation
		changed bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetReservationForUpdate(ctx, organizationID, reservationID)
		if err != nil {
			return err
		}
		r = current
		if current.Status == next {
			return nil
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, next)
		}
		applyStatus(&r, next, reason, s.now().UTC())
		changed = true
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		return model.Reservation{}, persistence("update status", err)
	}
	if !changed {
		return r, nil
	}

	s.logger.Info("reservation status changed", "reservation_id", r.ID, "status", r.Status)
	if next == model.StatusCancelled {
		s.dispatch(ctx, model.EventReservationCancelled, r, reason)
	}
	return r, nil
}

func applyStatus(r *model.Reservation, next model.Status, reason string, now time.Time) {
	r.Status = next
	r.UpdatedAt = now
	if next == model.StatusCancelled {
		r.CancelledAt = &now
		r.CancelReason = reason
	}
}

// List returns reservations for the admin calendar in date and start time order.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]model.Reservation, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = 100
	case filter.Limit > 500:
		filter.Limit = 500
	}
	if !filter.Date.IsZero() {
		filter.Date = clock.CivilDate(filter.Date)
	}
	out, err := s.store.SearchReservations(ctx, filter)
	if err != nil {
		return nil, persistence("list reservations", err)
	}
	return out, nil
}

// ExpirePending cancels pending reservations older than ttl and returns how many were released.
// Confirmed reservations are never touched.
func (s *Service) ExpirePending(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-ttl)
	total := 0
	for {
		var expired []model.Reservation
		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			expired, err = tx.ExpirePending(ctx, cutoff, expireBatchSize)
			return err
		})
		if err != nil {
			return total, persistence("expire pending", err)
		}
		for _, r := range expired {
			s.dispatch(ctx, model.EventReservationCancelled, r, "expired")
		}
		total += len(expired)
		if len(expired) < expireBatchSize {
			return total, nil
		}
	}
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) dispatch(ctx context.Context, typ model.EventType, r model.Reservation, reason string) {
	if s.notifier == nil {
		return
	}
	evt := model.ReservationEvent{
		ID:          s.newID(),
		Type:        typ,
		Reservation: r,
		Reason:      reason,
		OccurredAt:  s.now().UTC(),
	}
	// Detached from the request so a finished HTTP call does not cancel delivery.
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, evt); err != nil {
			s.logger.Warn("reservation notification failed",
				"event_type", evt.Type,
				"reservation_id", r.ID,
				"err", err,
			)
		}
	}()
}

func findSlot(slots []model.TimeSlot, start int) (model.TimeSlot, bool) {
	for _, slot := range slots {
		if slot.StartMinute == start {
			return slot, true
		}
	}
	return model.TimeSlot{}, false
}

// persistence passes semantic errors through and tags everything else as ErrPersistence.
func persistence(op string, err error) error {
	if model.IsSemantic(err) || errors.Is(err, model.ErrPersistence) || errors.Is(err, model.ErrDuplicateEvent) || errors.Is(err, model.ErrActivityMisconfigured) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", model.ErrPersistence, op, err)
}
