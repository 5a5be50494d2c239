package consultations

import (
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

// Party identifies one side of a consultation in event payloads.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EventPayload is the body of every consultation.*.v1 event.
type EventPayload struct {
	ConsultationID string    `json:"consultation_id"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Topic          string    `json:"topic,omitempty"`
	Farmer         Party     `json:"farmer"`
	Agronomist     Party     `json:"agronomist"`
	CancelReason   string    `json:"cancel_reason,omitempty"`
	CancelledBy    string    `json:"cancelled_by,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func newPayload(c model.Consultation, farmer, agro model.Profile, now time.Time) EventPayload {
	return EventPayload{
		ConsultationID: c.ID,
		Status:         string(c.Status),
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		Topic:          c.Topic,
		Farmer:         Party{ID: farmer.ID, Name: farmer.FullName, Email: farmer.Email},
		Agronomist:     Party{ID: agro.ID, Name: agro.FullName, Email: agro.Email},
		CancelReason:   c.CancelReason,
		CancelledBy:    c.CancelledBy,
		OccurredAt:     now.UTC(),
	}
}
