package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/services/api-service/internal/availability"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// SlotGuard validates a new booking against the locked schedule and the
// agronomist's active bookings around it. It returns the buffer to reserve
// after the consultation.
type SlotGuard func(av model.Availability, specials []model.SpecialDate, active []model.Consultation) (time.Duration, error)

// guardSpan bounds the bookings and special dates loaded around a new
// booking; wide enough to cover any timezone's local day.
const guardSpan = 48 * time.Hour

const consultationColumns = `id, agronomist_id, farmer_id, start_time, end_time, blocked_until, status,
	topic, notes, COALESCE(cancel_reason, ''), COALESCE(cancelled_by, ''), created_at, updated_at`

func scanConsultation(row pgx.Row) (model.Consultation, error) {
	var c model.Consultation
	var status string
	err := row.Scan(&c.ID, &c.AgronomistID, &c.FarmerID, &c.StartTime, &c.EndTime, &c.BlockedUntil, &status,
		&c.Topic, &c.Notes, &c.CancelReason, &c.CancelledBy, &c.CreatedAt, &c.UpdatedAt)
	c.Status = model.ConsultationStatus(status)
	return c, err
}

func collectConsultations(rows pgx.Rows) ([]model.Consultation, error) {
	defer rows.Close()
	var out []model.Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const availabilityColumns = `agronomist_id, timezone, work_start_minute, work_end_minute, working_days,
	buffer_minutes, max_per_day, slot_minutes, updated_at`

func scanAvailability(row pgx.Row) (model.Availability, error) {
	var av model.Availability
	var days []int32
	err := row.Scan(&av.AgronomistID, &av.Timezone, &av.WorkStartMinute, &av.WorkEndMinute, &days,
		&av.BufferMinutes, &av.MaxPerDay, &av.SlotMinutes, &av.UpdatedAt)
	for _, d := range days {
		av.WorkingDays = append(av.WorkingDays, time.Weekday(d))
	}
	return av, err
}

func weekdays(days []time.Weekday) []int32 {
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

// GetAvailability returns the saved schedule, or the default schedule when
// the agronomist has not saved one.
func (s *Store) GetAvailability(ctx context.Context, agronomistID string) (model.Availability, error) {
	av, err := scanAvailability(s.pool.QueryRow(ctx,
		`SELECT `+availabilityColumns+` FROM availability WHERE agronomist_id = $1`, agronomistID))
	if db.IsNoRows(err) {
		return model.DefaultAvailability(agronomistID), nil
	}
	return av, err
}

func (s *Store) UpsertAvailability(ctx context.Context, av model.Availability) (model.Availability, error) {
	return scanAvailability(s.pool.QueryRow(ctx, `
		INSERT INTO availability (agronomist_id, timezone, work_start_minute, work_end_minute, working_days,
			buffer_minutes, max_per_day, slot_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agronomist_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			work_start_minute = EXCLUDED.work_start_minute,
			work_end_minute = EXCLUDED.work_end_minute,
			working_days = EXCLUDED.working_days,
			buffer_minutes = EXCLUDED.buffer_minutes,
			max_per_day = EXCLUDED.max_per_day,
			slot_minutes = EXCLUDED.slot_minutes,
			updated_at = now()
		RETURNING `+availabilityColumns,
		av.AgronomistID, av.Timezone, av.WorkStartMinute, av.WorkEndMinute, weekdays(av.WorkingDays),
		av.BufferMinutes, av.MaxPerDay, av.SlotMinutes))
}

// lockAvailability takes the per-agronomist row lock that serializes bookings,
// creating the default schedule row first if needed.
func lockAvailability(ctx context.Context, tx pgx.Tx, agronomistID string) (model.Availability, error) {
	def := model.DefaultAvailability(agronomistID)
	if _, err := tx.Exec(ctx, `
		INSERT INTO availability (agronomist_id, timezone, work_start_minute, work_end_minute, working_days,
			buffer_minutes, max_per_day, slot_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agronomist_id) DO NOTHING
	`, def.AgronomistID, def.Timezone, def.WorkStartMinute, def.WorkEndMinute, weekdays(def.WorkingDays),
		def.BufferMinutes, def.MaxPerDay, def.SlotMinutes); err != nil {
		return model.Availability{}, err
	}
	return scanAvailability(tx.QueryRow(ctx,
		`SELECT `+availabilityColumns+` FROM availability WHERE agronomist_id = $1 FOR UPDATE`, agronomistID))
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listSpecialDates(ctx context.Context, q querier, agronomistID string, from, to time.Time) ([]model.SpecialDate, error) {
	rows, err := q.Query(ctx, `
		SELECT agronomist_id, date, available, start_minute, end_minute, note
		FROM availability_special_dates
		WHERE agronomist_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, agronomistID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SpecialDate
	for rows.Next() {
		var sd model.SpecialDate
		var date time.Time
		if err := rows.Scan(&sd.AgronomistID, &date, &sd.Available, &sd.StartMinute, &sd.EndMinute, &sd.Note); err != nil {
			return nil, err
		}
		sd.Date = date.Format(model.DateLayout)
		out = append(out, sd)
	}
	return out, rows.Err()
}

func (s *Store) ListSpecialDates(ctx context.Context, agronomistID string, from, to time.Time) ([]model.SpecialDate, error) {
	return listSpecialDates(ctx, s.pool, agronomistID, from, to)
}

func (s *Store) UpsertSpecialDate(ctx context.Context, sd model.SpecialDate) error {
	date, err := time.Parse(model.DateLayout, sd.Date)
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO availability_special_dates (agronomist_id, date, available, start_minute, end_minute, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agronomist_id, date) DO UPDATE SET
			available = EXCLUDED.available,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			note = EXCLUDED.note
	`, sd.AgronomistID, date, sd.Available, sd.StartMinute, sd.EndMinute, sd.Note)
	return err
}

func (s *Store) DeleteSpecialDate(ctx context.Context, agronomistID, date string) error {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM availability_special_dates WHERE agronomist_id = $1 AND date = $2
	`, agronomistID, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func listActive(ctx context.Context, q querier, agronomistID string, from, to time.Time) ([]model.Consultation, error) {
	rows, err := q.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE agronomist_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND blocked_until > $2
		ORDER BY start_time
	`, agronomistID, from, to)
	if err != nil {
		return nil, err
	}
	return collectConsultations(rows)
}

// ListActiveConsultations returns pending and confirmed bookings touching [from, to).
func (s *Store) ListActiveConsultations(ctx context.Context, agronomistID string, from, to time.Time) ([]model.Consultation, error) {
	return listActive(ctx, s.pool, agronomistID, from, to)
}

// CreateConsultation books c while holding the agronomist's availability row
// lock: guard runs against the locked schedule, charge is consumed, the row and
// evt are written. The exclusion constraint on active bookings backs the guard.
func (s *Store) CreateConsultation(ctx context.Context, c model.Consultation, guard SlotGuard, charge *entitlements.UsageCharge, evt outbox.Event) (model.Consultation, error) {
	var out model.Consultation
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		av, err := lockAvailability(ctx, tx, c.AgronomistID)
		if err != nil {
			return fmt.Errorf("lock availability: %w", err)
		}
		from, to := c.StartTime.Add(-guardSpan), c.StartTime.Add(guardSpan)
		specials, err := listSpecialDates(ctx, tx, c.AgronomistID, from, to)
		if err != nil {
			return err
		}
		active, err := listActive(ctx, tx, c.AgronomistID, from, to)
		if err != nil {
			return err
		}
		buffer, err := guard(av, specials, active)
		if err != nil {
			return err
		}
		c.BlockedUntil = c.EndTime.Add(buffer)

		if charge != nil {
			if _, err := consumeUsage(ctx, tx, *charge); err != nil {
				return err
			}
		}

		out, err = scanConsultation(tx.QueryRow(ctx, `
			INSERT INTO consultations (id, agronomist_id, farmer_id, start_time, end_time, blocked_until, status, topic, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+consultationColumns,
			c.ID, c.AgronomistID, c.FarmerID, c.StartTime, c.EndTime, c.BlockedUntil, string(c.Status), c.Topic, c.Notes))
		if err != nil {
			if db.IsExclusionViolation(err) {
				return availability.ErrSlotTaken
			}
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return out, err
}

func (s *Store) GetConsultation(ctx context.Context, id string) (model.Consultation, error) {
	if err := checkID(id); err != nil {
		return model.Consultation{}, err
	}
	c, err := scanConsultation(s.pool.QueryRow(ctx, `SELECT `+consultationColumns+` FROM consultations WHERE id = $1`, id))
	if err != nil {
		return model.Consultation{}, notFound(err)
	}
	return c, nil
}

func (s *Store) ListConsultations(ctx context.Context, f model.ConsultationFilter) ([]model.Consultation, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	switch {
	case f.AgronomistID != "" && f.FarmerID != "":
		where = append(where, fmt.Sprintf("(agronomist_id = %s OR farmer_id = %s)", arg(f.AgronomistID), arg(f.FarmerID)))
	case f.AgronomistID != "":
		where = append(where, "agronomist_id = "+arg(f.AgronomistID))
	case f.FarmerID != "":
		where = append(where, "farmer_id = "+arg(f.FarmerID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.From != nil {
		where = append(where, "start_time >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "start_time < "+arg(*f.To))
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := `SELECT ` + consultationColumns + ` FROM consultations`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_time DESC LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectConsultations(rows)
}

// UpdateConsultationStatus applies change only if the row is still in
// change.From, and writes evt in the same transaction.
func (s *Store) UpdateConsultationStatus(ctx context.Context, change model.StatusChange, evt outbox.Event) (model.Consultation, error) {
	if err := checkID(change.ID); err != nil {
		return model.Consultation{}, err
	}
	var out model.Consultation
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanConsultation(tx.QueryRow(ctx, `
			UPDATE consultations
			SET status = $3,
				cancel_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($4::text, '') ELSE cancel_reason END,
				cancelled_by = CASE WHEN $3 = 'cancelled' THEN NULLIF($5::text, '') ELSE cancelled_by END,
				updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING `+consultationColumns,
			change.ID, string(change.From), string(change.To), change.Reason, change.By))
		if db.IsNoRows(err) {
			var exists bool
			if qerr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM consultations WHERE id = $1)`, change.ID).Scan(&exists); qerr != nil {
				return qerr
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return out, err
}
