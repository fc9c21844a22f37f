package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ffgs-pipeline/internal/config"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

// Notifier announces completed cycles on a Kafka topic.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured cycle topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one message per completed (region, model) cycle.
func (n *Notifier) Notify(ctx context.Context, events ...domain.CycleCompleted) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish cycle notifications: %w", err)
	}
	n.logger.Debug("cycle notifications published", "count", len(msgs), "topic", n.writer.Topic)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// MessageKey is the partition key of a cycle notification.
func MessageKey(region, model string) string {
	return domain.Pair{Region: region, Model: model}.String()
}

// serializeToMessage marshals a CycleCompleted event into a Kafka message.
func serializeToMessage(event domain.CycleCompleted) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cycle event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(event.Region, event.Model)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "cycle", Value: []byte(event.Cycle)},
			{Key: "completed_at", Value: []byte(event.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
