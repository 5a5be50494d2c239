package consultations_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/availability"
	"github.com/agribeta/agribeta/services/api-service/internal/consultations"
	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/memstore"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Friday; the bookings below are on the following Monday.
var now = time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)

func monday(h, m int) time.Time {
	return time.Date(2026, 3, 16, h, m, 0, 0, time.UTC)
}

type fixture struct {
	store  *memstore.Store
	svc    *consultations.Service
	farmer model.Profile
	agro   model.Profile
	admin  model.Profile
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	clock := func() time.Time { return now }
	charger := entitlements.NewService(store, logger).WithClock(clock)
	return fixture{
		store:  store,
		svc:    consultations.NewService(store, charger, logger).WithClock(clock),
		farmer: store.AddProfile(model.Profile{ID: "farmer-1", FullName: "Amina", Email: "amina@example.com", Role: model.RoleFarmer, Tier: model.TierBasic}),
		agro:   store.AddProfile(model.Profile{ID: "agro-1", FullName: "Dr. Otieno", Email: "otieno@example.com", Role: model.RoleAgronomist, IsVerified: true}),
		admin:  store.AddProfile(model.Profile{ID: "admin-1", Role: model.RoleAdmin}),
	}
}

func (f fixture) book(t *testing.T, start time.Time, d time.Duration) (model.Consultation, error) {
	t.Helper()
	return f.svc.Book(context.Background(), f.farmer, consultations.BookRequest{
		AgronomistID: f.agro.ID,
		Start:        start,
		Duration:     d,
		Topic:        "Leaf spots on maize",
	})
}

func TestBookWritesRequestedEvent(t *testing.T) {
	f := newFixture(t)
	c, err := f.book(t, monday(10, 0), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, c.Status)
	assert.Equal(t, monday(11, 0), c.EndTime)
	assert.Equal(t, monday(11, 0), c.BlockedUntil)

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.ConsultationRequested, events[0].EventType)
	var payload consultations.EventPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, c.ID, payload.ConsultationID)
	assert.Equal(t, "otieno@example.com", payload.Agronomist.Email)
	assert.Equal(t, "Amina", payload.Farmer.Name)

	require.Len(t, f.store.UsageLog(), 1)
	assert.Equal(t, string(entitlements.ActionConsultation), f.store.UsageLog()[0].Action)
}

func TestBookOverlapAgainstConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	c, err := f.book(t, monday(10, 0), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), f.agro, c.ID)
	require.NoError(t, err)

	_, err = f.book(t, monday(10, 30), 30*time.Minute)
	require.ErrorIs(t, err, availability.ErrSlotTaken)

	_, err = f.book(t, monday(11, 0), 30*time.Minute)
	require.NoError(t, err)
}

func TestBookRespectsBufferAndCap(t *testing.T) {
	f := newFixture(t)
	av := model.DefaultAvailability(f.agro.ID)
	av.BufferMinutes = 15
	av.MaxPerDay = 2
	_, err := f.svc.UpdateAvailability(context.Background(), f.agro, av)
	require.NoError(t, err)

	c, err := f.book(t, monday(9, 0), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, monday(10, 15), c.BlockedUntil)

	_, err = f.book(t, monday(10, 0), 30*time.Minute)
	require.ErrorIs(t, err, availability.ErrSlotTaken)
	_, err = f.book(t, monday(10, 15), 30*time.Minute)
	require.NoError(t, err)
	_, err = f.book(t, monday(14, 0), 30*time.Minute)
	require.ErrorIs(t, err, availability.ErrDailyCapReached)
}

func TestBookUnavailableSpecialDate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.AddSpecialDate(context.Background(), f.agro, model.SpecialDate{Date: "2026-03-16", Available: false, Note: "field day"}))

	for _, h := range []int{9, 12, 16} {
		_, err := f.book(t, monday(h, 0), 30*time.Minute)
		require.ErrorIs(t, err, availability.ErrDateUnavailable)
	}
	ok, err := f.svc.IsSlotAvailable(context.Background(), f.agro.ID, monday(12, 0), 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.store.UsageLog())
}

func TestBookOutsideHours(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday(16, 45), 30*time.Minute)
	require.ErrorIs(t, err, availability.ErrOutOfHours)
	_, err = f.book(t, monday(10, 0).AddDate(0, 0, -2), 30*time.Minute)
	require.ErrorIs(t, err, availability.ErrOutOfHours)
}

func TestBookRejectsUnverifiedAgronomist(t *testing.T) {
	f := newFixture(t)
	f.store.AddProfile(model.Profile{ID: "agro-2", Role: model.RoleAgronomist})
	_, err := f.svc.Book(context.Background(), f.farmer, consultations.BookRequest{
		AgronomistID: "agro-2", Start: monday(10, 0), Duration: time.Hour,
	})
	require.ErrorIs(t, err, consultations.ErrAgronomistUnavailable)
}

func TestBookConsultationAllowance(t *testing.T) {
	f := newFixture(t)
	free := f.store.AddProfile(model.Profile{ID: "farmer-2", Role: model.RoleFarmer, Tier: model.TierFree})
	f.store.SetUsage(free.ID, entitlements.ActionConsultation, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 2)

	_, err := f.svc.Book(context.Background(), free, consultations.BookRequest{
		AgronomistID: f.agro.ID, Start: monday(10, 0), Duration: time.Hour,
	})
	require.ErrorIs(t, err, entitlements.ErrLimitExceeded)
	assert.Empty(t, f.store.Events())
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, now.Add(-time.Hour), time.Hour)
	require.ErrorIs(t, err, consultations.ErrStartInPast)
	_, err = f.book(t, monday(10, 0), 0)
	require.ErrorIs(t, err, availability.ErrInvalidDuration)
	_, err = f.svc.Book(context.Background(), f.agro, consultations.BookRequest{AgronomistID: f.agro.ID, Start: monday(10, 0), Duration: time.Hour})
	require.ErrorIs(t, err, consultations.ErrForbidden)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.book(t, monday(10, 0), time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, f.farmer, c.ID)
	require.ErrorIs(t, err, consultations.ErrForbidden)
	_, err = f.svc.Complete(ctx, f.agro, c.ID)
	require.ErrorIs(t, err, consultations.ErrInvalidTransition)

	_, err = f.svc.Confirm(ctx, f.agro, c.ID)
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, f.agro, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	_, err = f.svc.Cancel(ctx, f.farmer, c.ID, "too late")
	require.ErrorIs(t, err, consultations.ErrInvalidTransition)

	var types []string
	for _, e := range f.store.Events() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{outbox.ConsultationRequested, outbox.ConsultationConfirmed, outbox.ConsultationCompleted}, types)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.book(t, monday(10, 0), time.Hour)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, f.admin, c.ID, "agronomist sick")
	require.NoError(t, err)
	assert.Equal(t, "agronomist sick", cancelled.CancelReason)
	assert.Equal(t, f.admin.ID, cancelled.CancelledBy)

	_, err = f.book(t, monday(10, 0), time.Hour)
	require.NoError(t, err)
}

func TestListScopedToActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.book(t, monday(10, 0), time.Hour)
	require.NoError(t, err)
	other := f.store.AddProfile(model.Profile{ID: "farmer-3", Role: model.RoleFarmer, Tier: model.TierBasic})
	_, err = f.svc.Book(ctx, other, consultations.BookRequest{AgronomistID: f.agro.ID, Start: monday(12, 0), Duration: time.Hour})
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, f.farmer, model.ConsultationFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	agroList, err := f.svc.List(ctx, f.agro, model.ConsultationFilter{})
	require.NoError(t, err)
	assert.Len(t, agroList, 2)
	all, err := f.svc.List(ctx, f.admin, model.ConsultationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.Get(ctx, other, mine[0].ID)
	require.ErrorIs(t, err, consultations.ErrForbidden)
}

func TestSlotsSkipBookedTimes(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday(9, 0), time.Hour)
	require.NoError(t, err)

	slots, err := f.svc.Slots(context.Background(), f.agro.ID, "2026-03-16", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, monday(10, 0), slots[0].UTC())
	assert.Equal(t, monday(16, 0), slots[len(slots)-1].UTC())
	for _, s := range slots {
		assert.False(t, s.Before(monday(10, 0)))
	}
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	av := model.DefaultAvailability(f.agro.ID)
	av.Timezone = "Nowhere/Land"
	_, err := f.svc.UpdateAvailability(ctx, f.agro, av)
	require.ErrorIs(t, err, consultations.ErrInvalidSchedule)

	_, err = f.svc.UpdateAvailability(ctx, f.farmer, model.DefaultAvailability(f.farmer.ID))
	require.ErrorIs(t, err, consultations.ErrForbidden)

	start := 600
	err = f.svc.AddSpecialDate(ctx, f.agro, model.SpecialDate{Date: "2026-03-16", Available: true, StartMinute: &start})
	require.ErrorIs(t, err, consultations.ErrInvalidSchedule)

	require.NoError(t, f.svc.AddSpecialDate(ctx, f.agro, model.SpecialDate{Date: "2026-03-20", Available: false}))
	sched, err := f.svc.GetSchedule(ctx, f.agro.ID)
	require.NoError(t, err)
	assert.Len(t, sched.SpecialDates, 1)
	require.NoError(t, f.svc.DeleteSpecialDate(ctx, f.agro, "2026-03-20"))
}

func TestScheduleRequiresBookableAgronomist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.store.AddProfile(model.Profile{ID: "agro-2", Role: model.RoleAgronomist})

	_, err := f.svc.GetSchedule(ctx, f.farmer.ID)
	require.ErrorIs(t, err, consultations.ErrAgronomistUnavailable)
	_, err = f.svc.GetSchedule(ctx, pending.ID)
	require.ErrorIs(t, err, consultations.ErrAgronomistUnavailable)
	_, err = f.svc.GetSchedule(ctx, "missing")
	require.ErrorIs(t, err, consultations.ErrAgronomistUnavailable)

	own, err := f.svc.OwnSchedule(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, own.Availability.AgronomistID)

	_, err = f.svc.OwnSchedule(ctx, f.farmer)
	require.ErrorIs(t, err, consultations.ErrForbidden)
}
