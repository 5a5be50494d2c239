// Package consumer feeds consultation events from Kafka or NATS into a
// handler, dropping events already recorded in the inbox.
package consumer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message is a transport-neutral domain event.
type Message struct {
	EventID   string
	EventType string
	Payload   []byte
}

type Handler func(ctx context.Context, msg Message) error

// Inbox dedupes events by id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type dispatcher struct {
	system  string
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	retry   Backoff
}

// process runs handler once per event id. It reports whether the event is
// settled; false means it must be tried again.
func (d *dispatcher) process(ctx context.Context, msg Message) bool {
	ctx, span := otel.Tracer(d.system).Start(ctx, d.system+".consume",
		trace.WithAttributes(
			attribute.String("messaging.system", d.system),
			attribute.String("messaging.destination", msg.EventType),
		),
	)
	defer span.End()

	if msg.EventID == "" {
		d.logger.ErrorContext(ctx, "event without id dropped", "event_type", msg.EventType)
		return true
	}
	ok, err := d.inbox.Record(ctx, msg.EventID, msg.EventType)
	if err != nil {
		d.logger.ErrorContext(ctx, "inbox record failed", "err", err, "event_id", msg.EventID)
		span.RecordError(err)
		return false
	}
	if !ok {
		d.logger.InfoContext(ctx, "duplicate event ignored", "event_id", msg.EventID, "event_type", msg.EventType)
		return true
	}

	if err := d.handler(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "handler error", "err", err, "event_id", msg.EventID)
		span.RecordError(err)
		if ferr := d.inbox.Forget(ctx, msg.EventID); ferr != nil {
			d.logger.ErrorContext(ctx, "inbox release failed", "err", ferr, "event_id", msg.EventID)
		}
		return false
	}
	return true
}
