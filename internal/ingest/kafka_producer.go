package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-realtime/internal/models"
	"github.com/example/ride-realtime/internal/observability"
)

const DefaultTopic = "driver-locations"

// KafkaProducer streams driver location updates to the matching pipeline.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaProducer(brokers []string, topic string, logger *slog.Logger) *KafkaProducer {
	if topic == "" {
		topic = DefaultTopic
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	})
	return &KafkaProducer{writer: w, logger: logger}
}

// PublishLocation keys messages by driver so one driver's updates stay on one partition.
func (k *KafkaProducer) PublishLocation(ctx context.Context, u models.DriverLocationUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(u.DriverID), Value: b})
}

func (k *KafkaProducer) UpdateDriverLocation(ctx context.Context, u models.DriverLocationUpdate) {
	if err := k.PublishLocation(ctx, u); err != nil {
		observability.LocationUpdatesTotal.WithLabelValues("kafka", "error").Inc()
		k.logger.Error("kafka location publish failed", "driver_id", u.DriverID, "error", err)
		return
	}
	observability.LocationUpdatesTotal.WithLabelValues("kafka", "ok").Inc()
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
