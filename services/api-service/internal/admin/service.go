package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

var (
	ErrForbidden   = errors.New("admin role required")
	ErrEmptyChange = errors.New("no changes requested")
	ErrInvalid     = errors.New("invalid change")
)

const defaultListLimit = 100

type Store interface {
	ListProfiles(ctx context.Context, f model.ProfileFilter) ([]model.Profile, error)
	UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch, audit *model.AuditEvent) (model.Profile, error)
	UsageReport(ctx context.Context, periodStart time.Time) ([]model.UsageReportRow, error)
}

// Changes are the back-office edits an admin may apply to any profile.
type Changes struct {
	Role       *model.Role
	IsVerified *bool
	Tier       *model.Tier
	// AILimit sets the AI prediction limit override; -1 is unlimited.
	AILimit      *int
	ClearAILimit bool
}

func (c Changes) empty() bool {
	return c.Role == nil && c.IsVerified == nil && c.Tier == nil && c.AILimit == nil && !c.ClearAILimit
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ListProfiles(ctx context.Context, actor model.Profile, f model.ProfileFilter) ([]model.Profile, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = defaultListLimit
	}
	return s.store.ListProfiles(ctx, f)
}

// UpdateProfile applies c to profile id and records an audit row with it.
func (s *Service) UpdateProfile(ctx context.Context, actor model.Profile, id string, c Changes) (model.Profile, error) {
	if !actor.IsAdmin() {
		return model.Profile{}, ErrForbidden
	}
	if c.empty() {
		return model.Profile{}, ErrEmptyChange
	}
	if c.Role != nil && !c.Role.Valid() {
		return model.Profile{}, fmt.Errorf("%w: unknown role %q", ErrInvalid, *c.Role)
	}
	if c.Tier != nil && !c.Tier.Valid() {
		return model.Profile{}, fmt.Errorf("%w: unknown tier %q", ErrInvalid, *c.Tier)
	}
	if c.AILimit != nil && *c.AILimit < entitlements.Unlimited {
		return model.Profile{}, fmt.Errorf("%w: ai limit must be -1 or more", ErrInvalid)
	}
	if c.AILimit != nil && c.ClearAILimit {
		return model.Profile{}, fmt.Errorf("%w: cannot set and clear the ai limit", ErrInvalid)
	}

	meta := map[string]any{}
	if c.Role != nil {
		meta["role"] = string(*c.Role)
	}
	if c.IsVerified != nil {
		meta["is_verified"] = *c.IsVerified
	}
	if c.Tier != nil {
		meta["subscription_tier"] = string(*c.Tier)
	}
	if c.AILimit != nil {
		meta["ai_predictions_limit"] = *c.AILimit
	}
	if c.ClearAILimit {
		meta["ai_predictions_limit"] = nil
	}

	p, err := s.store.UpdateProfile(ctx, id, model.ProfilePatch{
		Role:            c.Role,
		IsVerified:      c.IsVerified,
		Tier:            c.Tier,
		AILimitOverride: c.AILimit,
		ClearAILimit:    c.ClearAILimit,
	}, &model.AuditEvent{
		ActorID:    actor.ID,
		Action:     "admin.profile.updated",
		TargetType: "profile",
		TargetID:   id,
		Metadata:   meta,
	})
	if err != nil {
		return model.Profile{}, err
	}
	s.logger.InfoContext(ctx, "profile updated by admin", "actor_id", actor.ID, "profile_id", id, "changes", meta)
	return p, nil
}

// UsageReport returns counters for the month containing month, defaulting to
// the current month.
func (s *Service) UsageReport(ctx context.Context, actor model.Profile, month time.Time) (time.Time, []model.UsageReportRow, error) {
	if !actor.IsAdmin() {
		return time.Time{}, nil, ErrForbidden
	}
	if month.IsZero() {
		month = s.now()
	}
	period := entitlements.PeriodStart(month)
	rows, err := s.store.UsageReport(ctx, period)
	return period, rows, err
}
