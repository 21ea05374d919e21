package fills

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"brokerage/internal/domain"
)

// messageWriter is the part of kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each fill as a JSON message keyed by account, so
// one account's fills stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// RecordFill publishes fill.
func (p *KafkaPublisher) RecordFill(ctx context.Context, fill domain.Fill) error {
	value, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("encoding fill %d: %w", fill.OrderID, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fill.AccountID),
		Value: value,
		Time:  fill.ExecutedAt,
	})
	if err != nil {
		return fmt.Errorf("publishing fill %d: %w", fill.OrderID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
