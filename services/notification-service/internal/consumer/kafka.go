package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/agribeta/agribeta/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// Retry paces attempts at an unsettled event; zero means DefaultBackoff.
	Retry Backoff
}

type KafkaConsumer struct {
	reader *kafka.Reader
	d      *dispatcher
}

func NewKafka(logger *slog.Logger, inbox Inbox, cfg KafkaConfig, handler Handler) *KafkaConsumer {
	if cfg.Retry.Min <= 0 || cfg.Retry.Max <= 0 {
		cfg.Retry = DefaultBackoff
	}
	return &KafkaConsumer{
		reader: kafkax.NewReader(cfg.Brokers, cfg.GroupID, cfg.Topics),
		d:      &dispatcher{system: "kafka", logger: logger, inbox: inbox, handler: handler, retry: cfg.Retry},
	}
}

// Run handles one message at a time and keeps retrying it until it is
// settled. Offsets are committed only for settled messages, so no later
// commit can skip past a failed event.
func (c *KafkaConsumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.d.logger.Error("kafka read error", "err", err)
			time.Sleep(time.Second)
			continue
		}

		meta := kafkax.ExtractEventMeta(msg)
		msgCtx := kafkax.ExtractTraceContext(ctx, msg)
		if !c.d.settle(msgCtx, Message{EventID: meta.EventID, EventType: meta.EventType, Payload: msg.Value}) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.d.logger.Error("kafka commit failed", "err", err, "event_id", meta.EventID)
		}
	}
}
