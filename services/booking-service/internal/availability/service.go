package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the read side the availability service needs.
type Store interface {
	// GetActivity returns model.ErrActivityNotFound for unknown ids and for activities of another organization.
	GetActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error)
	// ListReservations returns the reservations of activityID on date that still hold capacity.
	ListReservations(ctx context.Context, activityID string, date time.Time) ([]model.Reservation, error)
}

type Config struct {
	LeadTime time.Duration
	Now      func() time.Time
}

type Service struct {
	store    Store
	logger   *slog.Logger
	leadTime time.Duration
	now      func() time.Time
}

func NewService(store Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LeadTime < 0 {
		cfg.LeadTime = 0
	}
	return &Service{
		store:    store,
		logger:   logger,
		leadTime: cfg.LeadTime,
		now:      cfg.Now,
	}
}

// GetAvailability returns the slot grid for activityID on date ordered by start time.
// A closed day yields an empty, non-nil slice.
func (s *Service) GetAvailability(ctx context.Context, organizationID, activityID string, date time.Time) ([]model.TimeSlot, error) {
	_, slots, err := s.Snapshot(ctx, organizationID, activityID, date)
	return slots, err
}

// Snapshot is GetAvailability that also hands back the activity it evaluated against.
func (s *Service) Snapshot(ctx context.Context, organizationID, activityID string, date time.Time) (model.Activity, []model.TimeSlot, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.get",
		trace.WithAttributes(
			attribute.String("activity.id", activityID),
			attribute.String("date", clock.FormatDate(date)),
		),
	)
	defer span.End()

	activity, slots, err := s.snapshot(ctx, organizationID, activityID, clock.CivilDate(date))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Activity{}, nil, err
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return activity, slots, nil
}

func (s *Service) snapshot(ctx context.Context, organizationID, activityID string, date time.Time) (model.Activity, []model.TimeSlot, error) {
	activity, err := s.store.GetActivity(ctx, organizationID, activityID)
	if err != nil {
		if errors.Is(err, model.ErrActivityNotFound) {
			return model.Activity{}, nil, err
		}
		return model.Activity{}, nil, fmt.Errorf("%w: load activity: %v", model.ErrPersistence, err)
	}

	day, err := ResolveDay(activity.Config, date)
	if err != nil {
		s.logger.Error("activity operating config invalid", "activity_id", activityID, "err", err)
		return model.Activity{}, nil, fmt.Errorf("%w: %v", model.ErrActivityMisconfigured, err)
	}
	if !day.Open {
		return activity, []model.TimeSlot{}, nil
	}

	loc, err := activity.Config.Location()
	if err != nil {
		s.logger.Error("activity timezone invalid", "activity_id", activityID, "err", err)
		return model.Activity{}, nil, fmt.Errorf("%w: %v", model.ErrActivityMisconfigured, err)
	}

	candidates := GenerateSlots(day.OpenMinute, day.CloseMinute, activity.DurationMinutes, activity.Config.Interval(activity.DurationMinutes))
	if len(candidates) == 0 {
		return activity, []model.TimeSlot{}, nil
	}

	reservations, err := s.store.ListReservations(ctx, activity.ID, date)
	if err != nil {
		return model.Activity{}, nil, fmt.Errorf("%w: list reservations: %v", model.ErrPersistence, err)
	}

	now := s.now().In(loc)
	slots := make([]model.TimeSlot, 0, len(candidates))
	for _, c := range candidates {
		slot := model.TimeSlot{
			Start:       clock.FormatClock(c.Start),
			End:         clock.FormatEndClock(c.End),
			StartMinute: c.Start,
			EndMinute:   c.End,
			Capacity:    activity.Capacity,
		}
		if !activity.Active {
			slot.Reason = model.ReasonClosed
			slots = append(slots, slot)
			continue
		}
		ev := Evaluate(EvaluationInput{
			Slot:         c,
			Date:         date,
			Reservations: reservations,
			Blocked:      activity.Config.Blocked,
			Capacity:     activity.Capacity,
			Now:          now,
			LeadTime:     s.leadTime,
		})
		slot.Available = ev.Available
		slot.Reason = ev.Reason
		slot.RemainingCapacity = ev.RemainingCapacity
		slots = append(slots, slot)
	}
	return activity, slots, nil
}
