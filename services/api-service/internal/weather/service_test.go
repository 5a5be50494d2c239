package weather_test

import (
	"context"
	"testing"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/memstore"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestAndLatest(t *testing.T) {
	ctx := context.Background()
	svc := weather.NewService(memstore.New())
	admin := model.Profile{ID: "x1", Role: model.RoleAdmin}

	_, err := svc.Ingest(ctx, model.Profile{ID: "f1", Role: model.RoleFarmer}, model.WeatherSnapshot{Location: "Kisumu"})
	require.ErrorIs(t, err, weather.ErrForbidden)

	base := time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC)
	for i, loc := range []string{"Kisumu", "Nakuru", "Kisumu"} {
		_, err := svc.Ingest(ctx, admin, model.WeatherSnapshot{Location: " " + loc + " ", ObservedAt: base.Add(time.Duration(i) * time.Hour), TemperatureC: 20 + float64(i)})
		require.NoError(t, err)
	}
	noTime, err := svc.Ingest(ctx, admin, model.WeatherSnapshot{Location: "Eldoret"})
	require.NoError(t, err)
	assert.False(t, noTime.ObservedAt.IsZero())

	kisumu, err := svc.Latest(ctx, "kisumu", 10)
	require.NoError(t, err)
	require.Len(t, kisumu, 2)
	assert.Equal(t, 22.0, kisumu[0].TemperatureC)
}
