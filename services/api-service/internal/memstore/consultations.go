package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/availability"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/agribeta/agribeta/services/api-service/internal/storage"
)

const guardSpan = 48 * time.Hour

func (s *Store) GetAvailability(_ context.Context, agronomistID string) (model.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availabilityOf(agronomistID), nil
}

func (s *Store) availabilityOf(agronomistID string) model.Availability {
	if av, ok := s.availability[agronomistID]; ok {
		return av
	}
	return model.DefaultAvailability(agronomistID)
}

func (s *Store) UpsertAvailability(_ context.Context, av model.Availability) (model.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	av.WorkingDays = slices.Clone(av.WorkingDays)
	av.UpdatedAt = s.now()
	s.availability[av.AgronomistID] = av
	return av, nil
}

func (s *Store) ListSpecialDates(_ context.Context, agronomistID string, from, to time.Time) ([]model.SpecialDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.specialsBetween(agronomistID, from, to), nil
}

// specialsBetween compares calendar dates the way the date column does.
func (s *Store) specialsBetween(agronomistID string, from, to time.Time) []model.SpecialDate {
	lo, hi := from.UTC().Format(model.DateLayout), to.UTC().Format(model.DateLayout)
	var out []model.SpecialDate
	for date, sd := range s.specials[agronomistID] {
		if date >= lo && date <= hi {
			out = append(out, sd)
		}
	}
	slices.SortFunc(out, func(a, b model.SpecialDate) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	return out
}

func (s *Store) UpsertSpecialDate(_ context.Context, sd model.SpecialDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.specials[sd.AgronomistID] == nil {
		s.specials[sd.AgronomistID] = map[string]model.SpecialDate{}
	}
	s.specials[sd.AgronomistID][sd.Date] = sd
	return nil
}

func (s *Store) DeleteSpecialDate(_ context.Context, agronomistID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.specials[agronomistID][date]; !ok {
		return storage.ErrNotFound
	}
	delete(s.specials[agronomistID], date)
	return nil
}

func (s *Store) ListActiveConsultations(_ context.Context, agronomistID string, from, to time.Time) ([]model.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeBetween(agronomistID, from, to), nil
}

func (s *Store) activeBetween(agronomistID string, from, to time.Time) []model.Consultation {
	var out []model.Consultation
	for _, c := range s.consultations {
		if c.AgronomistID == agronomistID && c.Status.Active() && c.StartTime.Before(to) && c.BlockedUntil.After(from) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.Consultation) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

// CreateConsultation runs guard and the charge under the store lock, which
// stands in for the availability row lock.
func (s *Store) CreateConsultation(_ context.Context, c model.Consultation, guard storage.SlotGuard, charge *entitlements.UsageCharge, evt outbox.Event) (model.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	av := s.availabilityOf(c.AgronomistID)
	from, to := c.StartTime.Add(-guardSpan), c.StartTime.Add(guardSpan)
	buffer, err := guard(av, s.specialsBetween(c.AgronomistID, from, to), s.activeBetween(c.AgronomistID, from, to))
	if err != nil {
		return model.Consultation{}, err
	}
	c.BlockedUntil = c.EndTime.Add(buffer)

	for _, other := range s.consultations {
		if other.AgronomistID == c.AgronomistID && other.Status.Active() &&
			c.StartTime.Before(other.BlockedUntil) && other.StartTime.Before(c.BlockedUntil) {
			return model.Consultation{}, availability.ErrSlotTaken
		}
	}
	if charge != nil {
		if err := s.checkCharge(*charge); err != nil {
			return model.Consultation{}, err
		}
		s.applyCharge(*charge)
	}

	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.consultations[c.ID] = c
	s.events = append(s.events, evt)
	return c, nil
}

func (s *Store) GetConsultation(_ context.Context, id string) (model.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return model.Consultation{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListConsultations(_ context.Context, f model.ConsultationFilter) ([]model.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Consultation
	for _, c := range s.consultations {
		switch {
		case f.AgronomistID != "" && f.FarmerID != "":
			if c.AgronomistID != f.AgronomistID && c.FarmerID != f.FarmerID {
				continue
			}
		case f.AgronomistID != "":
			if c.AgronomistID != f.AgronomistID {
				continue
			}
		case f.FarmerID != "":
			if c.FarmerID != f.FarmerID {
				continue
			}
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.From != nil && c.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && !c.StartTime.Before(*f.To) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Consultation) int { return b.StartTime.Compare(a.StartTime) })
	return truncate(out, f.Limit, 50, 200), nil
}

func (s *Store) UpdateConsultationStatus(_ context.Context, change model.StatusChange, evt outbox.Event) (model.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[change.ID]
	if !ok {
		return model.Consultation{}, storage.ErrNotFound
	}
	if c.Status != change.From {
		return model.Consultation{}, storage.ErrConflict
	}
	c.Status = change.To
	if change.To == model.StatusCancelled {
		c.CancelReason = change.Reason
		c.CancelledBy = change.By
	}
	c.UpdatedAt = s.now()
	s.consultations[c.ID] = c
	s.events = append(s.events, evt)
	return c, nil
}
