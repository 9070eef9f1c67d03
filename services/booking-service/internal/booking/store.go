package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

// Store runs booking writes inside a single database transaction.
// Returning an error from fn rolls the transaction back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	SearchReservations(ctx context.Context, filter ListFilter) ([]model.Reservation, error)
}

// Tx is the set of statements the booking transaction issues.
// Implementations return model.ErrActivityNotFound, model.ErrReservationNotFound and
// model.ErrDuplicateEvent for the matching conditions and raw driver errors otherwise.
type Tx interface {
	// LockActivity takes a row lock that serializes bookings for the activity until commit.
	LockActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error)
	// BookedPartySize sums non-cancelled party sizes overlapping [start, end) on date.
	BookedPartySize(ctx context.Context, activityID string, date time.Time, start, end int) (int, error)
	// UpsertCustomer returns the existing customer with the same normalized email or inserts c.
	UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	InsertReservation(ctx context.Context, r model.Reservation) error
	GetReservationForUpdate(ctx context.Context, organizationID, reservationID string) (model.Reservation, error)
	UpdateReservation(ctx context.Context, r model.Reservation) error
	// RecordPaymentEvent stores a provider event id once; replays yield model.ErrDuplicateEvent.
	RecordPaymentEvent(ctx context.Context, provider, eventID string) error
	// ExpirePending cancels up to limit pending reservations created before cutoff and returns them.
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error)
}

type ListFilter struct {
	OrganizationID string
	ActivityID     string
	// Date is optional; zero lists every date.
	Date   time.Time
	Status model.Status
	Limit  int
}
