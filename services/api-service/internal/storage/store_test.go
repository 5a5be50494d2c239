package storage

import (
	"context"
	"testing"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/stretchr/testify/assert"
)

// The store has no pool here; a malformed id must be answered before any
// query is attempted.
func TestMalformedIDsReadAsNotFound(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	_, err := s.GetConsultation(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateConsultationStatus(ctx, model.StatusChange{ID: "abc", From: model.StatusPending, To: model.StatusConfirmed}, outbox.Event{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetDiagnosis(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetPost(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SetPostPublished(ctx, "", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckIDAcceptsUUIDs(t *testing.T) {
	assert.NoError(t, checkID("7b1d3c2e-9f4a-4c8e-8a51-2f0e6d9b4a17"))
	assert.ErrorIs(t, checkID("7b1d3c2e"), ErrNotFound)
}
