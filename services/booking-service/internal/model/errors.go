package model

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
)

// Semantic errors are deterministic for a given store state and are returned to callers as-is.
var (
	ErrFormat              = clock.ErrFormat
	ErrActivityNotFound    = errors.New("activity not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrInvalidPartySize    = errors.New("invalid party size")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// ErrPersistence marks storage failures. The whole booking attempt may be retried by the caller.
var ErrPersistence = errors.New("persistence failure")

// ErrActivityMisconfigured marks a stored operating config that cannot be evaluated.
// It is the operator's data at fault, not the request.
var ErrActivityMisconfigured = errors.New("activity misconfigured")

// ErrDuplicateEvent is returned by stores when a payment provider event was already applied.
var ErrDuplicateEvent = errors.New("duplicate provider event")

// SlotUnavailableError carries the reason a slot could not be booked.
type SlotUnavailableError struct {
	Start  string
	Reason SlotReason
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s unavailable: %s", e.Start, e.Reason)
}

func (e *SlotUnavailableError) Unwrap() error {
	return ErrSlotUnavailable
}

// IsSemantic reports whether err is one of the deterministic booking errors.
func IsSemantic(err error) bool {
	for _, target := range []error{
		ErrFormat,
		ErrActivityNotFound,
		ErrSlotNotFound,
		ErrSlotUnavailable,
		ErrCapacityExceeded,
		ErrInvalidPartySize,
		ErrReservationNotFound,
		ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
