package weather

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

var ErrForbidden = errors.New("only admins can ingest weather snapshots")

type Store interface {
	InsertWeatherSnapshot(ctx context.Context, w model.WeatherSnapshot) (model.WeatherSnapshot, error)
	LatestWeather(ctx context.Context, location string, limit int) ([]model.WeatherSnapshot, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Latest(ctx context.Context, location string, limit int) ([]model.WeatherSnapshot, error) {
	return s.store.LatestWeather(ctx, strings.TrimSpace(location), limit)
}

// Ingest records a snapshot; ObservedAt defaults to now.
func (s *Service) Ingest(ctx context.Context, actor model.Profile, w model.WeatherSnapshot) (model.WeatherSnapshot, error) {
	if !actor.IsAdmin() {
		return model.WeatherSnapshot{}, ErrForbidden
	}
	w.Location = strings.TrimSpace(w.Location)
	if w.ObservedAt.IsZero() {
		w.ObservedAt = s.now().UTC()
	}
	return s.store.InsertWeatherSnapshot(ctx, w)
}
