package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event is the domain event envelope written to the outbox table. The Kafka
// topic (or NATS subject) equals EventType.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	ConsultationRequested = "consultation.requested.v1"
	ConsultationConfirmed = "consultation.confirmed.v1"
	ConsultationCancelled = "consultation.cancelled.v1"
	ConsultationCompleted = "consultation.completed.v1"
)

// NewEvent marshals payload and assigns a fresh event id.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
