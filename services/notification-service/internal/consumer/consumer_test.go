package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memInbox struct {
	seen map[string]bool
	err  error
}

func (m *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, id string) error {
	delete(m.seen, id)
	return nil
}

func newDispatcher(inbox Inbox, h Handler) *dispatcher {
	return &dispatcher{
		system:  "test",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		inbox:   inbox,
		handler: h,
		retry:   Backoff{Min: time.Millisecond, Max: 4 * time.Millisecond},
	}
}

func TestProcessDropsDuplicates(t *testing.T) {
	calls := 0
	d := newDispatcher(&memInbox{seen: map[string]bool{}}, func(context.Context, Message) error {
		calls++
		return nil
	})
	msg := Message{EventID: "evt-1", EventType: "consultation.requested.v1"}

	assert.True(t, d.process(context.Background(), msg))
	assert.True(t, d.process(context.Background(), msg))
	assert.Equal(t, 1, calls)
}

func TestProcessReleasesFailedEvent(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	fail := true
	calls := 0
	d := newDispatcher(inbox, func(context.Context, Message) error {
		calls++
		if fail {
			return errors.New("smtp down")
		}
		return nil
	})
	msg := Message{EventID: "evt-2", EventType: "consultation.confirmed.v1"}

	assert.False(t, d.process(context.Background(), msg))
	assert.NotContains(t, inbox.seen, "evt-2")

	fail = false
	assert.True(t, d.process(context.Background(), msg))
	assert.Equal(t, 2, calls)
}

func TestProcessInboxFailureRetries(t *testing.T) {
	d := newDispatcher(&memInbox{err: errors.New("db down")}, func(context.Context, Message) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.False(t, d.process(context.Background(), Message{EventID: "evt-3"}))
}

func TestProcessDropsEventsWithoutID(t *testing.T) {
	d := newDispatcher(&memInbox{seen: map[string]bool{}}, func(context.Context, Message) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.True(t, d.process(context.Background(), Message{EventType: "consultation.requested.v1"}))
}

func TestSettleRetriesSameEventUntilDelivered(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	var seen []string
	d := newDispatcher(inbox, func(_ context.Context, m Message) error {
		seen = append(seen, m.EventID)
		if len(seen) < 3 {
			return errors.New("smtp down")
		}
		return nil
	})

	require.True(t, d.settle(context.Background(), Message{EventID: "evt-4", EventType: "consultation.cancelled.v1"}))
	assert.Equal(t, []string{"evt-4", "evt-4", "evt-4"}, seen)
	assert.True(t, inbox.seen["evt-4"])
}

func TestSettleStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	d := newDispatcher(&memInbox{seen: map[string]bool{}}, func(context.Context, Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("smtp down")
	})

	assert.False(t, d.settle(ctx, Message{EventID: "evt-5"}))
	assert.Equal(t, 2, calls)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 10 * time.Second}
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(5))
	assert.Equal(t, 10*time.Second, b.Delay(60))
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "notification-service_consultation_requested_v1", durableName("notification-service", "consultation.requested.v1"))
}
