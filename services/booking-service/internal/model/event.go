package model

import "time"

type EventType string

const (
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationCancelled EventType = "reservation.cancelled"
)

// ReservationEvent is handed to the notification collaborator after a state change commits.
type ReservationEvent struct {
	ID          string
	Type        EventType
	Reservation Reservation
	// Reason is set for cancellations; "expired" when the pending TTL elapsed.
	Reason     string
	OccurredAt time.Time
}
