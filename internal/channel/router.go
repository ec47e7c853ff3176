package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/ride-realtime/internal/bus"
	"github.com/example/ride-realtime/internal/dispatch"
)

// RideResponseSink receives drivers' answers to booking offers.
type RideResponseSink interface {
	RideResponse(ctx context.Context, driverID string, payload map[string]any)
}

// DriverNotificationChannel serves /ws/driver-notifications and is the
// receiving end of booking responses sent on the driver channel.
type DriverNotificationChannel struct {
	*Endpoint
	sink RideResponseSink
}

func NewDriverNotificationChannel(d Deps, sink RideResponseSink) *DriverNotificationChannel {
	ep := NewEndpoint(DriverNotifications, Options{
		Identify:         QueryIdentity("driverId"),
		BindFromEnvelope: true,
		Transport:        d.Transport,
		Logger:           d.Logger,
	})
	h := &driverHandlers{ep: ep, deps: d, logger: ep.logger}
	ep.Handle(dispatch.TypeRegister, h.register)
	return &DriverNotificationChannel{Endpoint: ep, sink: sink}
}

// HandleRideResponse takes one booking response exactly as the driver sent it.
func (n *DriverNotificationChannel) HandleRideResponse(ctx context.Context, driverID string, payload map[string]any) {
	n.logger.Info("ride response received", "driver_id", driverID, "booking_id", payload["bookingId"], "response", payload["response"])
	if n.sink != nil {
		n.sink.RideResponse(ctx, driverID, payload)
	}
}

// RouteBookingResponses subscribes n to booking responses published on b.
// The driver channel only publishes; it never holds a reference to n.
func RouteBookingResponses(ctx context.Context, b *bus.Bus, n *DriverNotificationChannel) error {
	return b.Subscribe(ctx, bus.TopicBookingResponse, func(ctx context.Context, payload []byte) error {
		var ev bus.BookingResponseReceived
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode booking response: %w", err)
		}
		n.HandleRideResponse(ctx, ev.DriverID, ev.Payload)
		return nil
	})
}
