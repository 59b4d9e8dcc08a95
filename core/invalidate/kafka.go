package invalidate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events keyed by domain so one partition keeps the order
// of a domain's invalidations.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(topic string, brokers ...string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Invalidate(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Domain),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("cache.invalidated")},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka invalidate %s: %w", ev.Domain, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
