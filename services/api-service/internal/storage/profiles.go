package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agribeta/agribeta/libs/db"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/jackc/pgx/v5"
)

const profileColumns = `id, email, full_name, role, subscription_tier, is_verified, ai_predictions_limit,
	specialization, location, bio, phone, created_at, updated_at`

func scanProfile(row pgx.Row) (model.Profile, error) {
	var p model.Profile
	var role, tier string
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &role, &tier, &p.IsVerified, &p.AILimitOverride,
		&p.Specialization, &p.Location, &p.Bio, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	p.Role = model.Role(role)
	p.Tier = model.Tier(tier)
	return p, err
}

func (s *Store) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return model.Profile{}, notFound(err)
	}
	return p, nil
}

// CreateProfile inserts a new profile on signup completion.
func (s *Store) CreateProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	out, err := scanProfile(s.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, email, full_name, role, subscription_tier, specialization, location, bio, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+profileColumns,
		p.ID, p.Email, p.FullName, string(p.Role), string(p.Tier), p.Specialization, p.Location, p.Bio, p.Phone))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Profile{}, ErrDuplicate
		}
		return model.Profile{}, err
	}
	return out, nil
}

// UpdateProfile applies patch and, when audit is set, records it in the same
// transaction.
func (s *Store) UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch, audit *model.AuditEvent) (model.Profile, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Specialization != nil {
		add("specialization", *patch.Specialization)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.Role != nil {
		add("role", string(*patch.Role))
	}
	if patch.IsVerified != nil {
		add("is_verified", *patch.IsVerified)
	}
	if patch.Tier != nil {
		add("subscription_tier", string(*patch.Tier))
	}
	if patch.ClearAILimit {
		sets = append(sets, "ai_predictions_limit = NULL")
	} else if patch.AILimitOverride != nil {
		add("ai_predictions_limit", *patch.AILimitOverride)
	}

	var out model.Profile
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanProfile(tx.QueryRow(ctx,
			`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+profileColumns, args...))
		if err != nil {
			return notFound(err)
		}
		if audit != nil {
			return insertAudit(ctx, tx, *audit)
		}
		return nil
	})
	return out, err
}

// ListProfiles backs the networking directory and the admin listing.
func (s *Store) ListProfiles(ctx context.Context, f model.ProfileFilter) ([]model.Profile, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Role != "" {
		where = append(where, "role = "+arg(string(f.Role)))
	}
	if f.VerifiedOnly {
		where = append(where, "is_verified")
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, fmt.Sprintf("(full_name ILIKE %s OR bio ILIKE %s)", p, p))
	}
	if f.Specialization != "" {
		where = append(where, "specialization ILIKE "+arg("%"+escapeLike(f.Specialization)+"%"))
	}
	if f.Location != "" {
		where = append(where, "location ILIKE "+arg("%"+escapeLike(f.Location)+"%"))
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := `SELECT ` + profileColumns + ` FROM profiles`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY full_name, id LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func insertAudit(ctx context.Context, tx pgx.Tx, a model.AuditEvent) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (actor_id, action, target_type, target_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ActorID, a.Action, a.TargetType, a.TargetID, meta)
	return err
}
