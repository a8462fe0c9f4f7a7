package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"authcore/internal/platform/kafka/producer"
)

// MessageProducer is the subset of the Kafka producer the sink needs.
type MessageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaStore publishes events as JSON to a Kafka topic, keyed by the masked
// subject so one identifier's events stay ordered within a partition.
type KafkaStore struct {
	producer MessageProducer
	topic    string
}

// NewKafkaStore creates a sink writing to topic.
func NewKafkaStore(p MessageProducer, topic string) *KafkaStore {
	return &KafkaStore{producer: p, topic: topic}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic:   s.topic,
		Key:     []byte(event.Subject),
		Value:   value,
		Headers: map[string]string{"action": event.Action},
	})
}
