package kafkax

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that routes by message topic and keeps all events
// of one aggregate on the same partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewReader joins groupID on the given topics.
func NewReader(brokers []string, groupID string, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}
