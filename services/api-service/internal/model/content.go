package model

import "time"

type Post struct {
	ID        string
	AuthorID  string
	Title     string
	Body      string
	CropType  string
	Tags      []string
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PostFilter struct {
	CropType      string
	Search        string
	AuthorID      string
	PublishedOnly bool
	Limit         int
}

type WeatherSnapshot struct {
	ID           int64
	Location     string
	ObservedAt   time.Time
	TemperatureC float64
	HumidityPct  float64
	RainfallMM   float64
	WindKPH      float64
	Summary      string
}

// ProviderEvent is a payment gateway webhook delivery, recorded once.
type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

type AuditEvent struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}
