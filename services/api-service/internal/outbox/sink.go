package outbox

import (
	"context"
	"fmt"

	"github.com/agribeta/agribeta/libs/kafkax"
	otelx "github.com/agribeta/agribeta/libs/otel"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
)

// Sink delivers outbox records to a broker.
type Sink interface {
	Publish(ctx context.Context, records []Record) error
	Close() error
}

type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string) *KafkaSink {
	return &KafkaSink{writer: kafkax.NewWriter(brokers)}
}

func (s *KafkaSink) Publish(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		headers := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}.Headers()
		msgs = append(msgs, kafka.Message{
			Topic:   r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

// NATSSink publishes each record to JetStream on a subject named after its
// event type. Nats-Msg-Id lets the stream drop redeliveries.
type NATSSink struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

func NewNATSSink(conn *nats.Conn, js nats.JetStreamContext) *NATSSink {
	return &NATSSink{conn: conn, js: js}
}

func (s *NATSSink) Publish(ctx context.Context, records []Record) error {
	for _, r := range records {
		msg := nats.NewMsg(r.EventType)
		msg.Data = r.Payload
		msg.Header.Set(nats.MsgIdHdr, r.EventID)
		msg.Header.Set(kafkax.HeaderEventID, r.EventID)
		msg.Header.Set(kafkax.HeaderEventType, r.EventType)
		otelx.InjectHeaders(otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate), msg.Header)
		if _, err := s.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish %s: %w", r.EventID, err)
		}
	}
	return nil
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
