package memstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/admin"
	"github.com/agribeta/agribeta/services/api-service/internal/billing"
	"github.com/agribeta/agribeta/services/api-service/internal/consultations"
	"github.com/agribeta/agribeta/services/api-service/internal/diagnosis"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/memstore"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/networking"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/agribeta/agribeta/services/api-service/internal/posts"
	"github.com/agribeta/agribeta/services/api-service/internal/profiles"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/agribeta/agribeta/services/api-service/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ admin.Store         = (*memstore.Store)(nil)
	_ billing.Store       = (*memstore.Store)(nil)
	_ consultations.Store = (*memstore.Store)(nil)
	_ diagnosis.Store     = (*memstore.Store)(nil)
	_ entitlements.Store  = (*memstore.Store)(nil)
	_ networking.Store    = (*memstore.Store)(nil)
	_ posts.Store         = (*memstore.Store)(nil)
	_ profiles.Store      = (*memstore.Store)(nil)
	_ weather.Store       = (*memstore.Store)(nil)

	_ admin.Store         = (*storage.Store)(nil)
	_ billing.Store       = (*storage.Store)(nil)
	_ consultations.Store = (*storage.Store)(nil)
	_ diagnosis.Store     = (*storage.Store)(nil)
	_ entitlements.Store  = (*storage.Store)(nil)
	_ networking.Store    = (*storage.Store)(nil)
	_ posts.Store         = (*storage.Store)(nil)
	_ profiles.Store      = (*storage.Store)(nil)
	_ weather.Store       = (*storage.Store)(nil)
)

func TestConsumeUsageIsConditional(t *testing.T) {
	s := memstore.New()
	s.AddProfile(model.Profile{ID: "u1", Role: model.RoleFarmer})
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	charge := entitlements.UsageCharge{ProfileID: "u1", Action: entitlements.ActionAIPrediction, Amount: 1, Limit: 5, PeriodStart: period}

	var wg sync.WaitGroup
	var mu sync.Mutex
	rejected := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeUsage(context.Background(), charge); errors.Is(err, entitlements.ErrLimitExceeded) {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	usage, err := s.UsageInPeriod(context.Background(), "u1", period)
	require.NoError(t, err)
	assert.Equal(t, 5, usage[entitlements.ActionAIPrediction])
	assert.Equal(t, 3, rejected)
	assert.Len(t, s.UsageLog(), 5)
}

func TestConsumeUsageUnknownProfile(t *testing.T) {
	s := memstore.New()
	_, err := s.ConsumeUsage(context.Background(), entitlements.UsageCharge{ProfileID: "ghost", Action: entitlements.ActionAIPrediction, Amount: 1, Limit: -1})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateConsultationStatusConflict(t *testing.T) {
	s := memstore.New()
	_, err := s.UpdateConsultationStatus(context.Background(), model.StatusChange{ID: "missing", From: model.StatusPending, To: model.StatusConfirmed}, outbox.Event{})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordProviderEventOnce(t *testing.T) {
	s := memstore.New()
	s.AddProfile(model.Profile{ID: "u1"})
	evt := model.ProviderEvent{Provider: "stripe", ProviderEventID: "evt_1"}
	change := &storage.TierChange{ProfileID: "u1", Tier: model.TierPremium}

	dup, err := s.RecordProviderEvent(context.Background(), evt, change)
	require.NoError(t, err)
	assert.False(t, dup)
	dup, err = s.RecordProviderEvent(context.Background(), evt, &storage.TierChange{ProfileID: "u1", Tier: model.TierFree})
	require.NoError(t, err)
	assert.True(t, dup)

	p, err := s.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.TierPremium, p.Tier)
	assert.Len(t, s.Audits(), 1)
}
