package model

import "time"

type ConsultationStatus string

const (
	StatusPending   ConsultationStatus = "pending"
	StatusConfirmed ConsultationStatus = "confirmed"
	StatusCancelled ConsultationStatus = "cancelled"
	StatusCompleted ConsultationStatus = "completed"
)

// Active bookings occupy the agronomist's calendar.
func (s ConsultationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Consultation struct {
	ID           string
	AgronomistID string
	FarmerID     string
	StartTime    time.Time
	EndTime      time.Time
	// BlockedUntil is EndTime plus the buffer in force when the booking was made.
	BlockedUntil time.Time
	Status       ConsultationStatus
	Topic        string
	Notes        string
	CancelReason string
	CancelledBy  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ConsultationFilter struct {
	AgronomistID string
	FarmerID     string
	Status       ConsultationStatus
	From         *time.Time
	To           *time.Time
	Limit        int
}

// StatusChange is applied only if the row is still in From.
type StatusChange struct {
	ID     string
	From   ConsultationStatus
	To     ConsultationStatus
	Reason string
	By     string
}

// Availability is an agronomist's weekly schedule. Minutes are offsets from
// local midnight in Timezone.
type Availability struct {
	AgronomistID    string
	Timezone        string
	WorkStartMinute int
	WorkEndMinute   int
	WorkingDays     []time.Weekday
	BufferMinutes   int
	MaxPerDay       int
	SlotMinutes     int
	UpdatedAt       time.Time
}

// DefaultAvailability is used for agronomists who have not saved a schedule:
// weekdays 09:00-17:00, no buffer, no cap.
func DefaultAvailability(agronomistID string) Availability {
	return Availability{
		AgronomistID:    agronomistID,
		Timezone:        "UTC",
		WorkStartMinute: 9 * 60,
		WorkEndMinute:   17 * 60,
		WorkingDays:     []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		SlotMinutes:     30,
	}
}

// SpecialDate overrides the weekly schedule for one local date.
type SpecialDate struct {
	AgronomistID string
	Date         string // YYYY-MM-DD in the agronomist's timezone
	Available    bool
	StartMinute  *int
	EndMinute    *int
	Note         string
}

const DateLayout = "2006-01-02"
