package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Envelope wraps every submission published to Kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka settles submissions by publishing them to a topic. A submission is
// settled once every in-sync replica has acknowledged it; the envelope's
// event ID is the reference.
type Kafka struct {
	w        messageWriter
	producer string
	now      func() time.Time
}

// NewKafka returns a ledger that writes to topic on the given brokers.
// Messages are keyed by item ID so one item's history stays in one partition.
func NewKafka(brokers []string, topic, producer string) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		producer: producer,
		now:      time.Now,
	}
}

// Settle publishes s synchronously and returns the envelope's event ID.
func (k *Kafka) Settle(ctx context.Context, s Submission) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding submission: %w", err)
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     s.Function,
		EventVersion:  1,
		OccurredAt:    k.now().UTC(),
		Producer:      k.producer,
		CorrelationID: s.ItemID,
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(s.ItemID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(s.Function)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publishing %s for %s: %w", s.Function, s.ItemID, err)
	}

	return env.EventID, nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
