package inbox

import (
	"context"

	"github.com/agribeta/agribeta/libs/db"
)

// Repository records processed event ids so redeliveries are dropped.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record returns false when eventID was already processed.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// Forget releases eventID after a failed handler run so a redelivery is
// processed again.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}
