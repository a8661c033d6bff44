//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaferPlaces2023/dpc-retriever/internal/adapter/kafka"
	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

const testTopic = "dpc-catalog-test"

// TestNotifierPublishesCatalogRecords verifies that records published by the
// notifier can be consumed with their key and headers intact.
func TestNotifierPublishesCatalogRecords(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	n := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = n.Close() })

	dt := time.Date(2025, 6, 30, 10, 55, 0, 0, time.UTC)
	records := []domain.CatalogRecord{
		{Product: "SRI", DateTime: dt, URI: "s3://bucket/data/year=2025/month=6/day=30/product=SRI/SRI.tif"},
		{Product: "VMI", DateTime: dt, URI: "s3://bucket/data/year=2025/month=6/day=30/product=VMI/VMI.tif"},
	}
	for _, rec := range records {
		require.NoError(t, n.Notify(ctx, rec))
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	for _, want := range records {
		msg, err := consumer.ReadMessage(ctx)
		require.NoError(t, err, "read catalog record")

		assert.Equal(t, domain.CatalogKey(want.DateTime, want.Product), string(msg.Key))
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, want.Product, headers["product"])
		assert.Equal(t, "2025-06-30T10:55:00Z", headers["date_time"])

		var got domain.CatalogRecord
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, want.URI, got.URI)
		assert.True(t, want.DateTime.Equal(got.DateTime))
	}
}
