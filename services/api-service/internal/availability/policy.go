package availability

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

var (
	ErrInvalidDuration = errors.New("consultation duration must be positive")
	ErrDateUnavailable = errors.New("agronomist is unavailable on this date")
	ErrOutOfHours      = errors.New("requested time is outside working hours")
	ErrDailyCapReached = errors.New("agronomist has reached the daily consultation limit")
	ErrSlotTaken       = errors.New("requested time overlaps an existing consultation")
)

// Policy is an agronomist's booking window: weekly hours in a timezone,
// per-date overrides, a buffer between consultations and a daily cap.
type Policy struct {
	loc         *time.Location
	workStart   int
	workEnd     int
	workingDays map[time.Weekday]bool
	buffer      time.Duration
	maxPerDay   int
	slotLength  time.Duration
	special     map[string]model.SpecialDate
}

func NewPolicy(av model.Availability, specials []model.SpecialDate) (*Policy, error) {
	tz := av.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	p := &Policy{
		loc:         loc,
		workStart:   av.WorkStartMinute,
		workEnd:     av.WorkEndMinute,
		workingDays: make(map[time.Weekday]bool, len(av.WorkingDays)),
		buffer:      time.Duration(av.BufferMinutes) * time.Minute,
		maxPerDay:   av.MaxPerDay,
		slotLength:  time.Duration(av.SlotMinutes) * time.Minute,
		special:     make(map[string]model.SpecialDate, len(specials)),
	}
	if p.slotLength <= 0 {
		p.slotLength = 30 * time.Minute
	}
	for _, d := range av.WorkingDays {
		p.workingDays[d] = true
	}
	for _, sd := range specials {
		p.special[sd.Date] = sd
	}
	return p, nil
}

func (p *Policy) Location() *time.Location { return p.loc }

func (p *Policy) Buffer() time.Duration { return p.buffer }

func (p *Policy) SlotLength() time.Duration { return p.slotLength }

// Window returns the bookable range of the local date containing day. ok is
// false when the date is not bookable at all.
func (p *Policy) Window(day time.Time) (start, end time.Time, ok bool) {
	local := day.In(p.loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, p.loc)

	startMin, endMin := p.workStart, p.workEnd
	if sd, found := p.special[midnight.Format(model.DateLayout)]; found {
		if !sd.Available {
			return time.Time{}, time.Time{}, false
		}
		if sd.StartMinute != nil {
			startMin = *sd.StartMinute
		}
		if sd.EndMinute != nil {
			endMin = *sd.EndMinute
		}
	} else if !p.workingDays[midnight.Weekday()] {
		return time.Time{}, time.Time{}, false
	}
	if endMin <= startMin {
		return time.Time{}, time.Time{}, false
	}
	return midnight.Add(time.Duration(startMin) * time.Minute), midnight.Add(time.Duration(endMin) * time.Minute), true
}

// Check validates a booking of duration d starting at start against existing
// active bookings. Rules apply in order: duration, unavailable date, working
// hours, daily cap, overlap including the buffer on both sides.
func (p *Policy) Check(start time.Time, d time.Duration, existing []Interval) error {
	if d <= 0 {
		return ErrInvalidDuration
	}
	local := start.In(p.loc)
	if sd, found := p.special[local.Format(model.DateLayout)]; found && !sd.Available {
		return ErrDateUnavailable
	}

	winStart, winEnd, ok := p.Window(local)
	if !ok || start.Before(winStart) || start.Add(d).After(winEnd) {
		return ErrOutOfHours
	}

	if p.maxPerDay > 0 && p.countOnDay(local, existing) >= p.maxPerDay {
		return ErrDailyCapReached
	}

	candidate := Interval{Start: start, End: start.Add(d + p.buffer)}
	for _, b := range existing {
		if candidate.Overlaps(Interval{Start: b.Start, End: b.End.Add(p.buffer)}) {
			return ErrSlotTaken
		}
	}
	return nil
}

func (p *Policy) IsSlotAvailable(start time.Time, d time.Duration, existing []Interval) bool {
	return p.Check(start, d, existing) == nil
}

// OpenSlots lists bookable start times of duration d on the local date of day.
// A zero step uses the configured slot length.
func (p *Policy) OpenSlots(day time.Time, d, step time.Duration, existing []Interval, now time.Time) []time.Time {
	winStart, winEnd, ok := p.Window(day)
	if !ok {
		return nil
	}
	if p.maxPerDay > 0 && p.countOnDay(winStart, existing) >= p.maxPerDay {
		return nil
	}
	if step <= 0 {
		step = p.slotLength
	}
	busy := make([]Interval, 0, len(existing))
	for _, b := range existing {
		busy = append(busy, Interval{Start: b.Start.Add(-p.buffer), End: b.End.Add(p.buffer)})
	}
	return AvailableSlots(winStart, winEnd, d, step, busy, now)
}

func (p *Policy) countOnDay(local time.Time, existing []Interval) int {
	day := local.In(p.loc).Format(model.DateLayout)
	n := 0
	for _, b := range existing {
		if b.Start.In(p.loc).Format(model.DateLayout) == day {
			n++
		}
	}
	return n
}

// Intervals converts active consultations to [start, end) intervals.
func Intervals(cs []model.Consultation) []Interval {
	out := make([]Interval, 0, len(cs))
	for _, c := range cs {
		if !c.Status.Active() {
			continue
		}
		out = append(out, Interval{Start: c.StartTime, End: c.EndTime})
	}
	return out
}
