package outbox

import (
	"context"
	"time"

	"github.com/agribeta/agribeta/libs/db"
	otelx "github.com/agribeta/agribeta/libs/otel"
	"github.com/jackc/pgx/v5"
)

// Record is an outbox row waiting for, or past, publication.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores evt in the caller's transaction along with the trace
// context of ctx, so the write and its event commit together.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
	`, evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Claim locks up to limit unpublished rows in id order. Concurrent
// publishers skip rows another one holds.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.Traceparent, &rec.Tracestate, &rec.CreatedAt)
		return rec, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

// Prune deletes rows published before cutoff.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
