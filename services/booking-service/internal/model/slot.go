package model

type SlotReason string

const (
	ReasonNone    SlotReason = ""
	ReasonBooked  SlotReason = "booked"
	ReasonBlocked SlotReason = "blocked"
	ReasonClosed  SlotReason = "closed"
	ReasonPast    SlotReason = "past"
)

// TimeSlot is derived on every availability query and never persisted.
type TimeSlot struct {
	Start             string
	End               string
	StartMinute       int
	EndMinute         int
	Capacity          int
	RemainingCapacity int
	Available         bool
	Reason            SlotReason
}
