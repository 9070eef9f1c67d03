package availability

// Span is a half-open [Start, End) interval in minutes after midnight.
type Span struct {
	Start int
	End   int
}

// GenerateSlots returns every slot [t, t+duration) with t starting at open and advancing by interval
// while t+duration <= close. When interval is shorter than duration the slots overlap and share capacity.
//
// interval <= 0 falls back to duration.
func GenerateSlots(open, close, duration, interval int) []Span {
	if duration <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = duration
	}
	if close <= open || open+duration > close {
		return nil
	}

	slots := make([]Span, 0, (close-open-duration)/interval+1)
	for t := open; t+duration <= close; t += interval {
		slots = append(slots, Span{Start: t, End: t + duration})
	}
	return slots
}

// Overlaps reports whether two half-open spans intersect; touching endpoints do not overlap.
func Overlaps(a, b Span) bool {
	return a.Start < b.End && b.Start < a.End
}
