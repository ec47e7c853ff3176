// Package bus is the in-process event bus that lets channel endpoints talk
// to each other without holding references to one another.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/example/ride-realtime/internal/observability"
)

// HandlerFunc consumes one event payload. Returned errors are logged; the
// event is acknowledged either way so nothing is redelivered.
type HandlerFunc func(ctx context.Context, payload []byte) error

type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewSlogLogger(logger))
	return &Bus{pubsub: ps, logger: logger}
}

// Publish marshals v to JSON and hands it to current subscribers of topic.
func (b *Bus) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", topic, err)
	}
	observability.BusEventsTotal.WithLabelValues(topic, "published").Inc()
	return nil
}

// Subscribe runs handle for every event on topic in a dedicated goroutine
// until ctx is done or the bus is closed. Ordering across publishes is not
// guaranteed.
func (b *Bus) Subscribe(ctx context.Context, topic string, handle HandlerFunc) error {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("bus: subscribe to %s: %w", topic, err)
	}
	go func() {
		for msg := range msgs {
			observability.BusEventsTotal.WithLabelValues(topic, "delivered").Inc()
			if err := handle(msg.Context(), msg.Payload); err != nil {
				b.logger.Error("bus handler failed", "topic", topic, "message_id", msg.UUID, "error", err)
			}
			msg.Ack()
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
