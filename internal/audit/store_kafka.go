package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"fleetdesk/internal/platform/kafka/producer"
)

// MessageProducer is the part of *producer.Producer the Kafka sink uses.
type MessageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaStore appends events to a Kafka topic as JSON, keyed by user ID so
// one user's events stay ordered within a partition.
type KafkaStore struct {
	producer MessageProducer
	topic    string
}

func NewKafkaStore(p MessageProducer, topic string) *KafkaStore {
	return &KafkaStore{producer: p, topic: topic}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	err = s.producer.Produce(ctx, &producer.Message{
		Topic:   s.topic,
		Key:     []byte(event.UserID),
		Value:   value,
		Headers: map[string]string{"action": string(event.Action)},
	})
	if err != nil {
		return fmt.Errorf("publishing audit event: %w", err)
	}
	return nil
}
