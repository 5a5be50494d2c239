package storage

import (
	"context"
	"encoding/json"

	"github.com/agribeta/agribeta/libs/db"
)

type Notification struct {
	EventID        string
	ConsultationID string
	Template       string
	Channel        string
	Recipient      string
	Provider       string
	Status         string
	Error          string
	Payload        map[string]any
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Sent(ctx context.Context, eventID, template, recipient string) (bool, error) {
	var sent bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE event_id = $1 AND template = $2 AND recipient = $3 AND status = 'sent'
		)
	`, eventID, template, recipient).Scan(&sent)
	return sent, err
}

// Insert is idempotent per (event, template, recipient).
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications
			(event_id, consultation_id, template, channel, recipient, provider, status, error, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (event_id, template, recipient) DO UPDATE
		SET status = EXCLUDED.status, provider = EXCLUDED.provider, error = EXCLUDED.error, updated_at = now()
	`, n.EventID, n.ConsultationID, n.Template, n.Channel, n.Recipient, n.Provider, n.Status, n.Error, payload)
	return err
}
