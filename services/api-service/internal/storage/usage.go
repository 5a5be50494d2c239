package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/jackc/pgx/v5"
)

func (s *Store) UsageInPeriod(ctx context.Context, profileID string, periodStart time.Time) (map[entitlements.Action]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT action, used FROM usage_counters
		WHERE profile_id = $1 AND period_start = $2
	`, profileID, periodStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := map[entitlements.Action]int{}
	for rows.Next() {
		var action string
		var used int
		if err := rows.Scan(&action, &used); err != nil {
			return nil, err
		}
		usage[entitlements.Action(action)] = used
	}
	return usage, rows.Err()
}

func (s *Store) ConsumeUsage(ctx context.Context, charge entitlements.UsageCharge) (int, error) {
	var used int
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		used, err = consumeUsage(ctx, tx, charge)
		return err
	})
	return used, err
}

// consumeUsage is a single conditional upsert: the counter only moves when the
// result stays within the limit. The usage log row is written alongside.
func consumeUsage(ctx context.Context, tx pgx.Tx, c entitlements.UsageCharge) (int, error) {
	if c.Amount <= 0 {
		return 0, entitlements.ErrInvalidAmount
	}
	// The insert branch of the upsert is unconditional.
	if c.Limit >= 0 && c.Amount > c.Limit {
		return 0, &entitlements.LimitError{Action: c.Action, Limit: c.Limit, Used: 0}
	}

	var used int
	err := tx.QueryRow(ctx, `
		INSERT INTO usage_counters (profile_id, action, period_start, used)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile_id, action, period_start) DO UPDATE
		SET used = usage_counters.used + EXCLUDED.used, updated_at = now()
		WHERE $5::int < 0 OR usage_counters.used + EXCLUDED.used <= $5::int
		RETURNING used
	`, c.ProfileID, string(c.Action), c.PeriodStart, c.Amount, c.Limit).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		var current int
		if err := tx.QueryRow(ctx, `
			SELECT used FROM usage_counters
			WHERE profile_id = $1 AND action = $2 AND period_start = $3
		`, c.ProfileID, string(c.Action), c.PeriodStart).Scan(&current); err != nil {
			return 0, fmt.Errorf("read usage after rejected charge: %w", err)
		}
		return current, &entitlements.LimitError{Action: c.Action, Limit: c.Limit, Used: current}
	}
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO service_usage (profile_id, action, quantity)
		VALUES ($1, $2, $3)
	`, c.ProfileID, string(c.Action), c.Amount); err != nil {
		return 0, err
	}
	return used, nil
}

// UsageReport aggregates counters of every profile for one period.
func (s *Store) UsageReport(ctx context.Context, periodStart time.Time) ([]model.UsageReportRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.email, p.full_name, p.role, p.subscription_tier, p.ai_predictions_limit, u.action, u.used
		FROM usage_counters u
		JOIN profiles p ON p.id = u.profile_id
		WHERE u.period_start = $1
		ORDER BY p.email, u.action
	`, periodStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UsageReportRow
	for rows.Next() {
		var r model.UsageReportRow
		var role, tier string
		var override *int
		if err := rows.Scan(&r.ProfileID, &r.Email, &r.FullName, &role, &tier, &override, &r.Action, &r.Used); err != nil {
			return nil, err
		}
		r.Role = model.Role(role)
		r.Tier = model.Tier(tier)
		r.Limit = entitlements.LimitFor(model.Profile{Tier: r.Tier, AILimitOverride: override}, entitlements.Action(r.Action))
		out = append(out, r)
	}
	return out, rows.Err()
}
