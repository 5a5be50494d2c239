package entitlements

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/model"
)

// UsageCharge is a pending consumption, applied by the store atomically with
// the business write that it pays for.
type UsageCharge struct {
	ProfileID   string
	Action      Action
	Amount      int
	Limit       int
	PeriodStart time.Time
}

// Store is the persistence the entitlement checks need.
type Store interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	UsageInPeriod(ctx context.Context, profileID string, periodStart time.Time) (map[Action]int, error)
	// ConsumeUsage applies charge with a conditional increment and returns the
	// new counter. A charge over the limit returns a *LimitError and writes nothing.
	ConsumeUsage(ctx context.Context, charge UsageCharge) (int, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the clock used to pick the billing period.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PeriodStart is the first instant of the UTC calendar month containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *Service) CurrentPeriod() time.Time { return PeriodStart(s.now()) }

func (s *Service) CanUseService(ctx context.Context, profileID string, action Action) (bool, error) {
	if !action.Valid() {
		return false, ErrUnknownAction
	}
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return false, fmt.Errorf("load profile: %w", err)
	}
	used, err := s.used(ctx, p.ID, action)
	if err != nil {
		return false, err
	}
	return CanUse(used, LimitFor(p, action)), nil
}

// TrackUsage records amount units of action for profileID. A rejected charge
// leaves the counter untouched.
func (s *Service) TrackUsage(ctx context.Context, profileID string, action Action, amount int) error {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	charge, err := s.Charge(ctx, p, action, amount)
	if err != nil {
		return err
	}
	if _, err := s.store.ConsumeUsage(ctx, charge); err != nil {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "usage rejected", "profile_id", profileID, "action", action, "err", err)
		}
		return err
	}
	return nil
}

// Charge pre-checks a consumption and returns the charge to apply. The store
// re-checks the limit when applying it.
func (s *Service) Charge(ctx context.Context, p model.Profile, action Action, amount int) (UsageCharge, error) {
	if !action.Valid() {
		return UsageCharge{}, ErrUnknownAction
	}
	limit := LimitFor(p, action)
	used, err := s.used(ctx, p.ID, action)
	if err != nil {
		return UsageCharge{}, err
	}
	if err := CheckConsume(action, used, amount, limit); err != nil {
		return UsageCharge{}, err
	}
	return UsageCharge{
		ProfileID:   p.ID,
		Action:      action,
		Amount:      amount,
		Limit:       limit,
		PeriodStart: s.CurrentPeriod(),
	}, nil
}

type UsageSummary struct {
	Action    Action `json:"action"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Summary lists used/limit/remaining per action for the current period.
// Remaining is -1 for unlimited actions.
func (s *Service) Summary(ctx context.Context, p model.Profile) ([]UsageSummary, error) {
	usage, err := s.store.UsageInPeriod(ctx, p.ID, s.CurrentPeriod())
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	out := make([]UsageSummary, 0, len(Actions))
	for _, a := range Actions {
		limit := LimitFor(p, a)
		used := usage[a]
		remaining := Unlimited
		if limit >= 0 {
			remaining = max(limit-used, 0)
		}
		out = append(out, UsageSummary{Action: a, Used: used, Limit: limit, Remaining: remaining})
	}
	return out, nil
}

func (s *Service) used(ctx context.Context, profileID string, action Action) (int, error) {
	usage, err := s.store.UsageInPeriod(ctx, profileID, s.CurrentPeriod())
	if err != nil {
		return 0, fmt.Errorf("load usage: %w", err)
	}
	return usage[action], nil
}
