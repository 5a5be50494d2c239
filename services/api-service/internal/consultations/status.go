package consultations

import (
	"errors"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
)

var ErrInvalidTransition = errors.New("invalid consultation status transition")

var transitions = map[model.ConsultationStatus][]model.ConsultationStatus{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled},
}

// CanTransition reports whether a consultation may move from one status to
// another. Completed and cancelled are terminal.
func CanTransition(from, to model.ConsultationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func eventFor(status model.ConsultationStatus) string {
	switch status {
	case model.StatusConfirmed:
		return outbox.ConsultationConfirmed
	case model.StatusCancelled:
		return outbox.ConsultationCancelled
	case model.StatusCompleted:
		return outbox.ConsultationCompleted
	}
	return outbox.ConsultationRequested
}
