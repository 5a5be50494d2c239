// Package memstore is an in-memory implementation of the api-service store
// interfaces with the same conflict and atomicity rules as the PostgreSQL
// store. It backs service and handler tests.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
)

type counterKey struct {
	profileID string
	action    entitlements.Action
	period    time.Time
}

type Store struct {
	mu sync.Mutex

	now            func() time.Time
	profiles       map[string]model.Profile
	counters       map[counterKey]int
	usageLog       []model.UsageEntry
	diagnoses      []model.DiagnosisResult
	availability   map[string]model.Availability
	specials       map[string]map[string]model.SpecialDate
	consultations  map[string]model.Consultation
	posts          map[string]model.Post
	weather        []model.WeatherSnapshot
	providerEvents map[string]bool
	events         []outbox.Event
	audits         []model.AuditEvent
}

func New() *Store {
	return &Store{
		now:            time.Now,
		profiles:       map[string]model.Profile{},
		counters:       map[counterKey]int{},
		availability:   map[string]model.Availability{},
		specials:       map[string]map[string]model.SpecialDate{},
		consultations:  map[string]model.Consultation{},
		posts:          map[string]model.Post{},
		providerEvents: map[string]bool{},
	}
}

// AddProfile seeds p, filling timestamps and the default tier.
func (s *Store) AddProfile(p model.Profile) model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Tier == "" {
		p.Tier = model.TierFree
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = p
	return p
}

// SetUsage seeds the counter of profileID for the period starting at period.
func (s *Store) SetUsage(profileID string, action entitlements.Action, period time.Time, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey{profileID, action, period}] = used
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *Store) UsageLog() []model.UsageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.usageLog)
}

func (s *Store) Audits() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audits)
}

func (s *Store) DiagnosisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.diagnoses)
}

// Profiles

func (s *Store) GetProfile(_ context.Context, id string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateProfile(_ context.Context, p model.Profile) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return model.Profile{}, storage.ErrDuplicate
	}
	for _, other := range s.profiles {
		if strings.EqualFold(other.Email, p.Email) {
			return model.Profile{}, storage.ErrDuplicate
		}
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, id string, patch model.ProfilePatch, audit *model.AuditEvent) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, storage.ErrNotFound
	}
	set(&p.FullName, patch.FullName)
	set(&p.Bio, patch.Bio)
	set(&p.Location, patch.Location)
	set(&p.Specialization, patch.Specialization)
	set(&p.Phone, patch.Phone)
	set(&p.Role, patch.Role)
	set(&p.IsVerified, patch.IsVerified)
	set(&p.Tier, patch.Tier)
	if patch.ClearAILimit {
		p.AILimitOverride = nil
	} else if patch.AILimitOverride != nil {
		v := *patch.AILimitOverride
		p.AILimitOverride = &v
	}
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	if audit != nil {
		s.audits = append(s.audits, *audit)
	}
	return p, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *Store) ListProfiles(_ context.Context, f model.ProfileFilter) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Profile
	for _, p := range s.profiles {
		if f.Role != "" && p.Role != f.Role {
			continue
		}
		if f.VerifiedOnly && !p.IsVerified {
			continue
		}
		if f.Search != "" && !containsFold(p.FullName, f.Search) && !containsFold(p.Bio, f.Search) {
			continue
		}
		if f.Specialization != "" && !containsFold(p.Specialization, f.Specialization) {
			continue
		}
		if f.Location != "" && !containsFold(p.Location, f.Location) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Profile) int {
		if c := strings.Compare(a.FullName, b.FullName); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return truncate(out, f.Limit, 50, 200), nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func truncate[T any](in []T, limit, def, maxLimit int) []T {
	if limit <= 0 || limit > maxLimit {
		limit = def
	}
	if len(in) > limit {
		return in[:limit]
	}
	return in
}

// Usage

func (s *Store) UsageInPeriod(_ context.Context, profileID string, periodStart time.Time) (map[entitlements.Action]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[entitlements.Action]int{}
	for k, used := range s.counters {
		if k.profileID == profileID && k.period.Equal(periodStart) {
			out[k.action] = used
		}
	}
	return out, nil
}

func (s *Store) ConsumeUsage(_ context.Context, charge entitlements.UsageCharge) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCharge(charge); err != nil {
		return s.counters[keyOf(charge)], err
	}
	return s.applyCharge(charge), nil
}

func keyOf(c entitlements.UsageCharge) counterKey {
	return counterKey{c.ProfileID, c.Action, c.PeriodStart}
}

func (s *Store) checkCharge(c entitlements.UsageCharge) error {
	if c.Amount <= 0 {
		return entitlements.ErrInvalidAmount
	}
	if _, ok := s.profiles[c.ProfileID]; !ok {
		return storage.ErrNotFound
	}
	used := s.counters[keyOf(c)]
	if c.Limit >= 0 && used+c.Amount > c.Limit {
		return &entitlements.LimitError{Action: c.Action, Limit: c.Limit, Used: used}
	}
	return nil
}

func (s *Store) applyCharge(c entitlements.UsageCharge) int {
	k := keyOf(c)
	s.counters[k] += c.Amount
	s.usageLog = append(s.usageLog, model.UsageEntry{
		ID:        int64(len(s.usageLog) + 1),
		ProfileID: c.ProfileID,
		Action:    string(c.Action),
		Quantity:  c.Amount,
		CreatedAt: s.now(),
	})
	return s.counters[k]
}

func (s *Store) UsageReport(_ context.Context, periodStart time.Time) ([]model.UsageReportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.UsageReportRow
	for k, used := range s.counters {
		p, ok := s.profiles[k.profileID]
		if !ok || !k.period.Equal(periodStart) {
			continue
		}
		out = append(out, model.UsageReportRow{
			ProfileID: p.ID,
			Email:     p.Email,
			FullName:  p.FullName,
			Role:      p.Role,
			Tier:      p.Tier,
			Action:    string(k.action),
			Used:      used,
			Limit:     entitlements.LimitFor(p, k.action),
		})
	}
	slices.SortFunc(out, func(a, b model.UsageReportRow) int {
		if c := strings.Compare(a.Email, b.Email); c != 0 {
			return c
		}
		return strings.Compare(a.Action, b.Action)
	})
	return out, nil
}

// Diagnoses

func (s *Store) CreateDiagnosis(_ context.Context, d model.DiagnosisResult, charge entitlements.UsageCharge) (model.DiagnosisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCharge(charge); err != nil {
		return model.DiagnosisResult{}, err
	}
	s.applyCharge(charge)
	d.CreatedAt = s.now()
	s.diagnoses = append(s.diagnoses, d)
	return d, nil
}

func (s *Store) GetDiagnosis(_ context.Context, id string) (model.DiagnosisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.diagnoses {
		if d.ID == id {
			return d, nil
		}
	}
	return model.DiagnosisResult{}, storage.ErrNotFound
}

func (s *Store) ListDiagnoses(_ context.Context, userID string, limit int) ([]model.DiagnosisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DiagnosisResult
	for i := len(s.diagnoses) - 1; i >= 0; i-- {
		if s.diagnoses[i].UserID == userID {
			out = append(out, s.diagnoses[i])
		}
	}
	return truncate(out, limit, 50, 200), nil
}

// Billing

func (s *Store) RecordProviderEvent(_ context.Context, evt model.ProviderEvent, change *storage.TierChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := evt.Provider + "/" + evt.ProviderEventID
	if s.providerEvents[key] {
		return true, nil
	}
	if change != nil {
		p, ok := s.profiles[change.ProfileID]
		if !ok {
			return false, storage.ErrNotFound
		}
		previous := p.Tier
		p.Tier = change.Tier
		p.UpdatedAt = s.now()
		s.profiles[p.ID] = p
		s.audits = append(s.audits, model.AuditEvent{
			ActorID:    evt.Provider,
			Action:     "billing.tier.changed",
			TargetType: "profile",
			TargetID:   p.ID,
			Metadata: map[string]any{
				"from":              string(previous),
				"to":                string(change.Tier),
				"reason":            change.Reason,
				"provider_event_id": evt.ProviderEventID,
			},
		})
	}
	s.providerEvents[key] = true
	return false, nil
}
