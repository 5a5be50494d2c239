package availability

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals. Slots starting before now
// are skipped.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
