package entitlements_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/memstore"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now    = time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)
	period = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func newService(store *memstore.Store) *entitlements.Service {
	return entitlements.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return now })
}

func TestTrackUsageOverLimitLeavesCounter(t *testing.T) {
	store := memstore.New()
	store.AddProfile(model.Profile{ID: "u1", Role: model.RoleFarmer, Tier: model.TierFree})
	store.SetUsage("u1", entitlements.ActionAIPrediction, period, 4)
	svc := newService(store)

	err := svc.TrackUsage(context.Background(), "u1", entitlements.ActionAIPrediction, 2)
	var le *entitlements.LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 5, le.Limit)
	assert.Equal(t, 4, le.Used)

	usage, err := store.UsageInPeriod(context.Background(), "u1", period)
	require.NoError(t, err)
	assert.Equal(t, 4, usage[entitlements.ActionAIPrediction])
	assert.Empty(t, store.UsageLog())

	require.NoError(t, svc.TrackUsage(context.Background(), "u1", entitlements.ActionAIPrediction, 1))
	ok, err := svc.CanUseService(context.Background(), "u1", entitlements.ActionAIPrediction)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, store.UsageLog(), 1)
}

func TestUnlimitedTierAlwaysAllowed(t *testing.T) {
	store := memstore.New()
	store.AddProfile(model.Profile{ID: "p1", Tier: model.TierPremium})
	store.SetUsage("p1", entitlements.ActionAIPrediction, period, 1000)
	svc := newService(store)

	ok, err := svc.CanUseService(context.Background(), "p1", entitlements.ActionAIPrediction)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, svc.TrackUsage(context.Background(), "p1", entitlements.ActionAIPrediction, 1))
}

func TestOverrideWinsOverTier(t *testing.T) {
	store := memstore.New()
	limit := 1
	store.AddProfile(model.Profile{ID: "u1", Tier: model.TierBasic, AILimitOverride: &limit})
	svc := newService(store)

	require.NoError(t, svc.TrackUsage(context.Background(), "u1", entitlements.ActionAIPrediction, 1))
	err := svc.TrackUsage(context.Background(), "u1", entitlements.ActionAIPrediction, 1)
	require.ErrorIs(t, err, entitlements.ErrLimitExceeded)
}

func TestPreviousPeriodDoesNotCount(t *testing.T) {
	store := memstore.New()
	store.AddProfile(model.Profile{ID: "u1", Tier: model.TierFree})
	store.SetUsage("u1", entitlements.ActionAIPrediction, period.AddDate(0, -1, 0), 5)
	svc := newService(store)

	ok, err := svc.CanUseService(context.Background(), "u1", entitlements.ActionAIPrediction)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSummary(t *testing.T) {
	store := memstore.New()
	p := store.AddProfile(model.Profile{ID: "u1", Tier: model.TierFree})
	store.SetUsage("u1", entitlements.ActionConsultation, period, 2)
	svc := newService(store)

	sum, err := svc.Summary(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []entitlements.UsageSummary{
		{Action: entitlements.ActionAIPrediction, Used: 0, Limit: 5, Remaining: 5},
		{Action: entitlements.ActionConsultation, Used: 2, Limit: 2, Remaining: 0},
	}, sum)
}

func TestUnknownActionAndProfile(t *testing.T) {
	store := memstore.New()
	svc := newService(store)
	_, err := svc.CanUseService(context.Background(), "u1", entitlements.Action("sms"))
	require.ErrorIs(t, err, entitlements.ErrUnknownAction)
	err = svc.TrackUsage(context.Background(), "ghost", entitlements.ActionAIPrediction, 1)
	require.Error(t, err)
}
