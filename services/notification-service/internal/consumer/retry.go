package consumer

import (
	"context"
	"time"
)

// Backoff doubles from Min per attempt and is capped at Max.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

var DefaultBackoff = Backoff{Min: time.Second, Max: time.Minute}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Min
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// settle processes msg until it is settled, waiting between attempts. It
// returns false only when ctx ends first.
func (d *dispatcher) settle(ctx context.Context, msg Message) bool {
	for attempt := 1; ; attempt++ {
		if d.process(ctx, msg) {
			return true
		}
		wait := d.retry.Delay(attempt)
		d.logger.WarnContext(ctx, "event not settled, retrying", "event_id", msg.EventID, "attempt", attempt, "retry_in", wait.String())
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}
