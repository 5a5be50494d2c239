package storage

import (
	"context"

	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/jackc/pgx/v5"
)

// TierChange moves a profile to a subscription tier as a result of a payment
// gateway event.
type TierChange struct {
	ProfileID string
	Tier      model.Tier
	Reason    string
}

// RecordProviderEvent stores a webhook delivery once and applies change with
// it. A replayed delivery reports duplicate and applies nothing.
func (s *Store) RecordProviderEvent(ctx context.Context, evt model.ProviderEvent, change *TierChange) (duplicate bool, err error) {
	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO billing_provider_events (provider, provider_event_id, event_type, payload)
			VALUES ($1, $2, $3, $4)
		`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
		if err != nil {
			if db.IsUniqueViolation(err) {
				duplicate = true
				return nil
			}
			return err
		}
		if change == nil {
			return nil
		}

		var previous string
		err = tx.QueryRow(ctx, `
			UPDATE profiles p SET subscription_tier = $2, updated_at = now()
			FROM (SELECT id, subscription_tier FROM profiles WHERE id = $1 FOR UPDATE) old
			WHERE p.id = old.id
			RETURNING old.subscription_tier
		`, change.ProfileID, string(change.Tier)).Scan(&previous)
		if err != nil {
			return notFound(err)
		}
		return insertAudit(ctx, tx, model.AuditEvent{
			ActorID:    evt.Provider,
			Action:     "billing.tier.changed",
			TargetType: "profile",
			TargetID:   change.ProfileID,
			Metadata: map[string]any{
				"from":              previous,
				"to":                string(change.Tier),
				"reason":            change.Reason,
				"provider_event_id": evt.ProviderEventID,
			},
		})
	})
	return duplicate, err
}
