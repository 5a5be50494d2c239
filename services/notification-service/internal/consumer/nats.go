package consumer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/agribeta/agribeta/libs/kafkax"
	otelx "github.com/agribeta/agribeta/libs/otel"
	"github.com/nats-io/nats.go"
)

// NATSConsumer reads events from JetStream with explicit acks. Unsettled
// events are negatively acknowledged with a growing delay, so the server
// redelivers them.
type NATSConsumer struct {
	js       nats.JetStreamContext
	subjects []string
	queue    string
	d        *dispatcher
}

// NewNATS binds one durable queue consumer per subject, so replicas share
// each subject's events.
func NewNATS(logger *slog.Logger, inbox Inbox, js nats.JetStreamContext, queue string, subjects []string, handler Handler) *NATSConsumer {
	return &NATSConsumer{
		js:       js,
		subjects: subjects,
		queue:    queue,
		d:        &dispatcher{system: "nats", logger: logger, inbox: inbox, handler: handler, retry: DefaultBackoff},
	}
}

// Run blocks until ctx is done.
func (c *NATSConsumer) Run(ctx context.Context) error {
	var subs []*nats.Subscription
	defer func() {
		for _, s := range subs {
			_ = s.Drain()
		}
	}()
	for _, subject := range c.subjects {
		group := durableName(c.queue, subject)
		sub, err := c.js.QueueSubscribe(subject, group, func(m *nats.Msg) {
			c.handle(ctx, m)
		},
			nats.Durable(group),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.DeliverAll(),
			nats.AckWait(time.Minute),
		)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	<-ctx.Done()
	return nil
}

func (c *NATSConsumer) handle(ctx context.Context, m *nats.Msg) {
	msg := Message{EventType: m.Subject, Payload: m.Data}
	if m.Header != nil {
		msg.EventID = m.Header.Get(kafkax.HeaderEventID)
		if msg.EventID == "" {
			msg.EventID = m.Header.Get(nats.MsgIdHdr)
		}
		if t := m.Header.Get(kafkax.HeaderEventType); t != "" {
			msg.EventType = t
		}
		ctx = otelx.ExtractHeaders(ctx, m.Header)
	}

	if c.d.process(ctx, msg) {
		if err := m.Ack(); err != nil {
			c.d.logger.ErrorContext(ctx, "nats ack failed", "err", err, "event_id", msg.EventID)
		}
		return
	}
	delivered := 1
	if md, err := m.Metadata(); err == nil {
		delivered = int(md.NumDelivered)
	}
	wait := c.d.retry.Delay(delivered)
	if err := m.NakWithDelay(wait); err != nil {
		c.d.logger.ErrorContext(ctx, "nats nak failed", "err", err, "event_id", msg.EventID)
	}
}

// durableName derives a JetStream-safe consumer name; dots, wildcards and
// spaces are not allowed there.
func durableName(queue, subject string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(queue + "_" + subject)
}
