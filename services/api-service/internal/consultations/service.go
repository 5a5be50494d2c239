package consultations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/availability"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrForbidden             = errors.New("not allowed to act on this consultation")
	ErrAgronomistUnavailable = errors.New("agronomist not found or not verified")
	ErrStartInPast           = errors.New("consultation must start in the future")
	ErrInvalidSchedule       = errors.New("invalid availability schedule")
)

const MaxDuration = 4 * time.Hour

type Store interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	GetAvailability(ctx context.Context, agronomistID string) (model.Availability, error)
	UpsertAvailability(ctx context.Context, av model.Availability) (model.Availability, error)
	ListSpecialDates(ctx context.Context, agronomistID string, from, to time.Time) ([]model.SpecialDate, error)
	UpsertSpecialDate(ctx context.Context, sd model.SpecialDate) error
	DeleteSpecialDate(ctx context.Context, agronomistID, date string) error
	ListActiveConsultations(ctx context.Context, agronomistID string, from, to time.Time) ([]model.Consultation, error)
	CreateConsultation(ctx context.Context, c model.Consultation, guard storage.SlotGuard, charge *entitlements.UsageCharge, evt outbox.Event) (model.Consultation, error)
	GetConsultation(ctx context.Context, id string) (model.Consultation, error)
	ListConsultations(ctx context.Context, f model.ConsultationFilter) ([]model.Consultation, error)
	UpdateConsultationStatus(ctx context.Context, change model.StatusChange, evt outbox.Event) (model.Consultation, error)
}

// Charger prices a metered action for a profile.
type Charger interface {
	Charge(ctx context.Context, p model.Profile, action entitlements.Action, amount int) (entitlements.UsageCharge, error)
}

type Service struct {
	store   Store
	charger Charger
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, charger Charger, logger *slog.Logger) *Service {
	return &Service{store: store, charger: charger, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type BookRequest struct {
	AgronomistID string
	Start        time.Time
	Duration     time.Duration
	Topic        string
	Notes        string
}

// Book requests a consultation for farmer. The slot is re-validated under the
// agronomist's lock and the farmer's consultation allowance is consumed in
// the same transaction.
func (s *Service) Book(ctx context.Context, farmer model.Profile, req BookRequest) (model.Consultation, error) {
	if farmer.Role != model.RoleFarmer {
		return model.Consultation{}, ErrForbidden
	}
	if req.Duration <= 0 || req.Duration > MaxDuration {
		return model.Consultation{}, availability.ErrInvalidDuration
	}
	if !req.Start.After(s.now()) {
		return model.Consultation{}, ErrStartInPast
	}
	agro, err := s.agronomist(ctx, req.AgronomistID)
	if err != nil {
		return model.Consultation{}, err
	}

	charge, err := s.charger.Charge(ctx, farmer, entitlements.ActionConsultation, 1)
	if err != nil {
		s.logger.InfoContext(ctx, "consultation booking rejected", "farmer_id", farmer.ID, "err", err)
		return model.Consultation{}, err
	}

	start := req.Start.UTC()
	c := model.Consultation{
		ID:           uuid.NewString(),
		AgronomistID: agro.ID,
		FarmerID:     farmer.ID,
		StartTime:    start,
		EndTime:      start.Add(req.Duration),
		Status:       model.StatusPending,
		Topic:        req.Topic,
		Notes:        req.Notes,
	}
	evt, err := outbox.NewEvent("consultation", c.ID, outbox.ConsultationRequested, newPayload(c, farmer, agro, s.now()))
	if err != nil {
		return model.Consultation{}, err
	}

	guard := func(av model.Availability, specials []model.SpecialDate, active []model.Consultation) (time.Duration, error) {
		policy, err := availability.NewPolicy(av, specials)
		if err != nil {
			return 0, err
		}
		if err := policy.Check(c.StartTime, req.Duration, availability.Intervals(active)); err != nil {
			return 0, err
		}
		return policy.Buffer(), nil
	}

	out, err := s.store.CreateConsultation(ctx, c, guard, &charge, evt)
	if err != nil {
		if isRejection(err) {
			s.logger.InfoContext(ctx, "consultation booking rejected",
				"farmer_id", farmer.ID, "agronomist_id", agro.ID, "start", c.StartTime, "err", err)
		}
		return model.Consultation{}, err
	}
	s.logger.InfoContext(ctx, "consultation requested", "consultation_id", out.ID, "agronomist_id", agro.ID)
	return out, nil
}

func isRejection(err error) bool {
	return errors.Is(err, availability.ErrSlotTaken) ||
		errors.Is(err, availability.ErrOutOfHours) ||
		errors.Is(err, availability.ErrDailyCapReached) ||
		errors.Is(err, availability.ErrDateUnavailable) ||
		errors.Is(err, entitlements.ErrLimitExceeded)
}

func (s *Service) Confirm(ctx context.Context, actor model.Profile, id string) (model.Consultation, error) {
	return s.transition(ctx, actor, id, model.StatusConfirmed, "")
}

func (s *Service) Complete(ctx context.Context, actor model.Profile, id string) (model.Consultation, error) {
	return s.transition(ctx, actor, id, model.StatusCompleted, "")
}

func (s *Service) Cancel(ctx context.Context, actor model.Profile, id, reason string) (model.Consultation, error) {
	return s.transition(ctx, actor, id, model.StatusCancelled, reason)
}

func (s *Service) transition(ctx context.Context, actor model.Profile, id string, to model.ConsultationStatus, reason string) (model.Consultation, error) {
	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		return model.Consultation{}, err
	}
	if !mayTransition(actor, c, to) {
		return model.Consultation{}, ErrForbidden
	}
	if !CanTransition(c.Status, to) {
		return model.Consultation{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}

	farmer, err := s.store.GetProfile(ctx, c.FarmerID)
	if err != nil {
		return model.Consultation{}, fmt.Errorf("load farmer: %w", err)
	}
	agro, err := s.store.GetProfile(ctx, c.AgronomistID)
	if err != nil {
		return model.Consultation{}, fmt.Errorf("load agronomist: %w", err)
	}

	next := c
	next.Status = to
	if to == model.StatusCancelled {
		next.CancelReason = reason
		next.CancelledBy = actor.ID
	}
	evt, err := outbox.NewEvent("consultation", c.ID, eventFor(to), newPayload(next, farmer, agro, s.now()))
	if err != nil {
		return model.Consultation{}, err
	}

	out, err := s.store.UpdateConsultationStatus(ctx, model.StatusChange{
		ID:     c.ID,
		From:   c.Status,
		To:     to,
		Reason: reason,
		By:     actor.ID,
	}, evt)
	if errors.Is(err, storage.ErrConflict) {
		return model.Consultation{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return model.Consultation{}, err
	}
	s.logger.InfoContext(ctx, "consultation status changed", "consultation_id", c.ID, "from", c.Status, "to", to, "actor_id", actor.ID)
	return out, nil
}

// Confirm and complete belong to the agronomist; either party or an admin
// may cancel.
func mayTransition(actor model.Profile, c model.Consultation, to model.ConsultationStatus) bool {
	switch to {
	case model.StatusConfirmed, model.StatusCompleted:
		return actor.ID == c.AgronomistID
	case model.StatusCancelled:
		return actor.ID == c.AgronomistID || actor.ID == c.FarmerID || actor.IsAdmin()
	}
	return false
}

func (s *Service) Get(ctx context.Context, actor model.Profile, id string) (model.Consultation, error) {
	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		return model.Consultation{}, err
	}
	if !actor.IsAdmin() && actor.ID != c.FarmerID && actor.ID != c.AgronomistID {
		return model.Consultation{}, ErrForbidden
	}
	return c, nil
}

// List scopes the filter to the actor's own consultations unless the actor is an admin.
func (s *Service) List(ctx context.Context, actor model.Profile, f model.ConsultationFilter) ([]model.Consultation, error) {
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleAgronomist:
		f.AgronomistID, f.FarmerID = actor.ID, ""
	default:
		f.FarmerID, f.AgronomistID = actor.ID, ""
	}
	return s.store.ListConsultations(ctx, f)
}

// CheckSlot evaluates the booking window for a proposed slot using fresh
// schedule and booking data. A nil error means the slot is bookable now.
func (s *Service) CheckSlot(ctx context.Context, agronomistID string, start time.Time, d time.Duration) error {
	if _, err := s.agronomist(ctx, agronomistID); err != nil {
		return err
	}
	policy, active, err := s.policyAround(ctx, agronomistID, start)
	if err != nil {
		return err
	}
	return policy.Check(start, d, availability.Intervals(active))
}

// IsSlotAvailable reports policy rejections as false and returns only
// dependency errors.
func (s *Service) IsSlotAvailable(ctx context.Context, agronomistID string, start time.Time, d time.Duration) (bool, error) {
	err := s.CheckSlot(ctx, agronomistID, start, d)
	switch {
	case err == nil:
		return true, nil
	case isRejection(err), errors.Is(err, availability.ErrInvalidDuration), errors.Is(err, ErrAgronomistUnavailable):
		return false, nil
	default:
		return false, err
	}
}

// Slots lists open start times on date (YYYY-MM-DD, agronomist's timezone).
func (s *Service) Slots(ctx context.Context, agronomistID, date string, d time.Duration) ([]time.Time, error) {
	if d <= 0 || d > MaxDuration {
		return nil, availability.ErrInvalidDuration
	}
	if _, err := s.agronomist(ctx, agronomistID); err != nil {
		return nil, err
	}
	av, err := s.store.GetAvailability(ctx, agronomistID)
	if err != nil {
		return nil, err
	}
	dayPolicy, err := availability.NewPolicy(av, nil)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(model.DateLayout, date, dayPolicy.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidSchedule)
	}
	policy, active, err := s.policyAround(ctx, agronomistID, day.Add(12*time.Hour))
	if err != nil {
		return nil, err
	}
	return policy.OpenSlots(day, d, 0, availability.Intervals(active), s.now()), nil
}

func (s *Service) policyAround(ctx context.Context, agronomistID string, t time.Time) (*availability.Policy, []model.Consultation, error) {
	av, err := s.store.GetAvailability(ctx, agronomistID)
	if err != nil {
		return nil, nil, err
	}
	from, to := t.Add(-48*time.Hour), t.Add(48*time.Hour)
	specials, err := s.store.ListSpecialDates(ctx, agronomistID, from, to)
	if err != nil {
		return nil, nil, err
	}
	active, err := s.store.ListActiveConsultations(ctx, agronomistID, from, to)
	if err != nil {
		return nil, nil, err
	}
	policy, err := availability.NewPolicy(av, specials)
	if err != nil {
		return nil, nil, err
	}
	return policy, active, nil
}

func (s *Service) agronomist(ctx context.Context, id string) (model.Profile, error) {
	agro, err := s.store.GetProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Profile{}, ErrAgronomistUnavailable
	}
	if err != nil {
		return model.Profile{}, err
	}
	if agro.Role != model.RoleAgronomist || !agro.IsVerified {
		return model.Profile{}, ErrAgronomistUnavailable
	}
	return agro, nil
}

type Schedule struct {
	Availability model.Availability
	SpecialDates []model.SpecialDate
}

// GetSchedule returns the weekly schedule and special dates for the next 90 days
// of a bookable agronomist.
func (s *Service) GetSchedule(ctx context.Context, agronomistID string) (Schedule, error) {
	if _, err := s.agronomist(ctx, agronomistID); err != nil {
		return Schedule{}, err
	}
	return s.schedule(ctx, agronomistID)
}

// OwnSchedule lets an agronomist read their schedule before verification.
func (s *Service) OwnSchedule(ctx context.Context, actor model.Profile) (Schedule, error) {
	if actor.Role != model.RoleAgronomist {
		return Schedule{}, ErrForbidden
	}
	return s.schedule(ctx, actor.ID)
}

func (s *Service) schedule(ctx context.Context, agronomistID string) (Schedule, error) {
	av, err := s.store.GetAvailability(ctx, agronomistID)
	if err != nil {
		return Schedule{}, err
	}
	now := s.now().UTC()
	specials, err := s.store.ListSpecialDates(ctx, agronomistID, now.Add(-24*time.Hour), now.AddDate(0, 0, 90))
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Availability: av, SpecialDates: specials}, nil
}

func (s *Service) UpdateAvailability(ctx context.Context, actor model.Profile, av model.Availability) (model.Availability, error) {
	if actor.Role != model.RoleAgronomist {
		return model.Availability{}, ErrForbidden
	}
	av.AgronomistID = actor.ID
	if err := validateAvailability(av); err != nil {
		return model.Availability{}, err
	}
	return s.store.UpsertAvailability(ctx, av)
}

func (s *Service) AddSpecialDate(ctx context.Context, actor model.Profile, sd model.SpecialDate) error {
	if actor.Role != model.RoleAgronomist {
		return ErrForbidden
	}
	sd.AgronomistID = actor.ID
	if _, err := time.Parse(model.DateLayout, sd.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidSchedule)
	}
	if (sd.StartMinute == nil) != (sd.EndMinute == nil) {
		return fmt.Errorf("%w: start_minute and end_minute go together", ErrInvalidSchedule)
	}
	if sd.StartMinute != nil && !validWindow(*sd.StartMinute, *sd.EndMinute) {
		return fmt.Errorf("%w: override hours must satisfy 0 <= start < end <= 1440", ErrInvalidSchedule)
	}
	return s.store.UpsertSpecialDate(ctx, sd)
}

func (s *Service) DeleteSpecialDate(ctx context.Context, actor model.Profile, date string) error {
	if actor.Role != model.RoleAgronomist {
		return ErrForbidden
	}
	return s.store.DeleteSpecialDate(ctx, actor.ID, date)
}

func validateAvailability(av model.Availability) error {
	if _, err := time.LoadLocation(av.Timezone); err != nil || av.Timezone == "" {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, av.Timezone)
	}
	if !validWindow(av.WorkStartMinute, av.WorkEndMinute) {
		return fmt.Errorf("%w: working hours must satisfy 0 <= start < end <= 1440", ErrInvalidSchedule)
	}
	for _, d := range av.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: working day %d out of range", ErrInvalidSchedule, d)
		}
	}
	if av.BufferMinutes < 0 || av.BufferMinutes > 240 {
		return fmt.Errorf("%w: buffer must be between 0 and 240 minutes", ErrInvalidSchedule)
	}
	if av.MaxPerDay < 0 {
		return fmt.Errorf("%w: max per day must not be negative", ErrInvalidSchedule)
	}
	if av.SlotMinutes < 5 || av.SlotMinutes > 240 {
		return fmt.Errorf("%w: slot length must be between 5 and 240 minutes", ErrInvalidSchedule)
	}
	return nil
}

func validWindow(start, end int) bool {
	return start >= 0 && end <= 24*60 && start < end
}
