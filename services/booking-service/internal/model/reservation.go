package model

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCheckedIn Status = "checked-in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCheckedIn, StatusNoShow, StatusCancelled},
	StatusCheckedIn: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, true
	}
	return "", false
}

// CountsAgainstCapacity is false only for cancelled reservations.
func (s Status) CountsAgainstCapacity() bool {
	return s != StatusCancelled
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentRefunded PaymentStatus = "refunded"
)

type Reservation struct {
	ID             string
	OrganizationID string
	ActivityID     string
	CustomerID     string
	Date           time.Time
	StartMinute    int
	EndMinute      int
	PartySize      int
	Status         Status
	PaymentStatus  PaymentStatus
	TotalCents     int64
	Currency       string
	PaymentRef     string
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
}

func (r Reservation) StartTime() string {
	return clock.FormatClock(r.StartMinute)
}

func (r Reservation) EndTime() string {
	return clock.FormatEndClock(r.EndMinute)
}

type Customer struct {
	ID             string
	OrganizationID string
	Email          string
	Name           string
	Phone          string
	CreatedAt      time.Time
}

// NormalizeEmail is the lookup key for customers within an organization.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
