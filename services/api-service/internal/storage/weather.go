package storage

import (
	"context"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

func (s *Store) InsertWeatherSnapshot(ctx context.Context, w model.WeatherSnapshot) (model.WeatherSnapshot, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO weather_snapshots (location, observed_at, temperature_c, humidity_pct, rainfall_mm, wind_kph, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, w.Location, w.ObservedAt, w.TemperatureC, w.HumidityPct, w.RainfallMM, w.WindKPH, w.Summary).Scan(&w.ID)
	return w, err
}

// LatestWeather returns the newest snapshots, optionally for one location.
func (s *Store) LatestWeather(ctx context.Context, location string, limit int) ([]model.WeatherSnapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, location, observed_at, temperature_c, humidity_pct, rainfall_mm, wind_kph, summary
		FROM weather_snapshots
		WHERE $1 = '' OR location ILIKE $1
		ORDER BY observed_at DESC
		LIMIT $2
	`, location, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeatherSnapshot
	for rows.Next() {
		var w model.WeatherSnapshot
		if err := rows.Scan(&w.ID, &w.Location, &w.ObservedAt, &w.TemperatureC, &w.HumidityPct, &w.RainfallMM, &w.WindKPH, &w.Summary); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
