package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

// Notifier publishes registered catalog records to a Kafka topic.
// It implements archive.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured catalog topic.
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

// Notify publishes one record. Records of the same partition share a key so
// they stay ordered.
func (n *Notifier) Notify(ctx context.Context, rec domain.CatalogRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish catalog record: %w", err)
	}
	n.logger.Debug("catalog record published", "topic", n.writer.Topic, "uri", rec.URI)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a CatalogRecord into a Kafka message keyed by
// its catalog object key.
func serializeToMessage(rec domain.CatalogRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize catalog record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(domain.CatalogKey(rec.DateTime, rec.Product)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "product", Value: []byte(rec.Product)},
			{Key: "date_time", Value: []byte(rec.DateTime.UTC().Format(time.RFC3339))},
		},
	}, nil
}
