package consultations

import (
	"testing"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

func TestCanTransition(t *testing.T) {
	all := []model.ConsultationStatus{model.StatusPending, model.StatusConfirmed, model.StatusCancelled, model.StatusCompleted}
	allowed := map[[2]model.ConsultationStatus]bool{
		{model.StatusPending, model.StatusConfirmed}:   true,
		{model.StatusPending, model.StatusCancelled}:   true,
		{model.StatusConfirmed, model.StatusCompleted}: true,
		{model.StatusConfirmed, model.StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]model.ConsultationStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}
