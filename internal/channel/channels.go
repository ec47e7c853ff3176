package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-realtime/internal/bus"
	"github.com/example/ride-realtime/internal/dispatch"
	"github.com/example/ride-realtime/internal/geo"
	"github.com/example/ride-realtime/internal/models"
	"github.com/example/ride-realtime/internal/storage"
)

// Deps are the collaborators shared by the channel constructors.
type Deps struct {
	Locations geo.LocationUpdater
	Events    storage.EventStore // optional
	Bus       *bus.Bus
	Transport TransportOptions
	Logger    *slog.Logger
}

// NewDriverChannel serves /ws/driver/{driverId}.
func NewDriverChannel(d Deps) *Endpoint {
	ep := NewEndpoint(Driver, Options{
		Identify: PathIdentity("/ws/driver/"),
		Greet: func(id string) dispatch.Envelope {
			return dispatch.NewEnvelope(dispatch.TypeConnectionEstablished, map[string]any{
				"driverId": id,
				"message":  "WebSocket connection established",
			})
		},
		Transport: d.Transport,
		Logger:    d.Logger,
	})
	h := &driverHandlers{ep: ep, deps: d, logger: ep.logger}
	ep.Handle(dispatch.TypeRegister, h.register)
	ep.Handle(dispatch.TypeLocation, h.location)
	ep.Handle(dispatch.TypeStatus, h.status)
	ep.Handle(dispatch.TypeBookingResponse, h.bookingResponse)
	ep.Handle(dispatch.TypeTripCompleted, h.tripCompleted)
	return ep
}

// NewDriverLocationChannel serves /ws/driver-location.
func NewDriverLocationChannel(d Deps) *Endpoint {
	ep := NewEndpoint(DriverLocation, Options{
		Identify:         QueryIdentity("driverId"),
		BindFromEnvelope: true,
		Transport:        d.Transport,
		Logger:           d.Logger,
	})
	h := &driverHandlers{ep: ep, deps: d, logger: ep.logger}
	ep.Handle(dispatch.TypeRegister, h.register)
	ep.Handle(dispatch.TypeLocation, h.location)
	return ep
}

// NewRiderNotificationChannel serves /ws/rider-notifications.
func NewRiderNotificationChannel(d Deps) *Endpoint {
	ep := NewEndpoint(RiderNotifications, Options{
		Identify:         QueryIdentity("riderId"),
		BindFromEnvelope: true,
		SenderKeys:       []string{"riderId", "senderId", "driverId"},
		Transport:        d.Transport,
		Logger:           d.Logger,
	})
	subscribe := func(_ context.Context, req *dispatch.Request) {
		ep.logger.Info("rider subscribed", "rider_id", req.Identity, "booking_id", req.Envelope.String("bookingId"))
		ep.Reply(req.Conn, dispatch.NewEnvelope(dispatch.TypeSubscriptionConfirmed, map[string]any{
			"riderId":   req.Identity,
			"bookingId": req.Envelope.Payload["bookingId"],
			"message":   "Subscribed to ride notifications",
		}))
	}
	ep.Handle(dispatch.TypeSubscribe, subscribe)
	ep.Handle(dispatch.TypeRegister, subscribe)
	return ep
}

type driverHandlers struct {
	ep     *Endpoint
	deps   Deps
	logger *slog.Logger
}

func (h *driverHandlers) register(_ context.Context, req *dispatch.Request) {
	h.logger.Info("driver registered", "driver_id", req.Identity)
	h.ep.Reply(req.Conn, dispatch.NewEnvelope(dispatch.TypeRegistrationConfirmed, map[string]any{
		"driverId": req.Identity,
		"message":  "Driver registration confirmed",
	}))
}

func (h *driverHandlers) location(ctx context.Context, req *dispatch.Request) {
	u, err := locationUpdate(req.Identity, req.Envelope)
	if err != nil {
		h.logger.Error("invalid driver location", "driver_id", req.Identity, "error", err)
		return
	}
	h.deps.Locations.UpdateDriverLocation(ctx, u)
	h.logger.Debug("driver location updated", "driver_id", u.DriverID, "lat", u.Latitude, "lng", u.Longitude)
}

func (h *driverHandlers) status(ctx context.Context, req *dispatch.Request) {
	status := req.Envelope.String("status")
	h.logger.Info("driver status updated", "driver_id", req.Identity, "status", status)
	h.record(ctx, models.DriverEvent{
		DriverID: req.Identity,
		Kind:     models.DriverEventStatus,
		Status:   status,
		Payload:  req.Envelope.Payload,
	})
}

func (h *driverHandlers) bookingResponse(ctx context.Context, req *dispatch.Request) {
	ev := bus.BookingResponseReceived{DriverID: req.Identity, Payload: req.Envelope.Payload}
	if err := h.deps.Bus.Publish(ctx, bus.TopicBookingResponse, ev); err != nil {
		h.logger.Error("publish booking response", "driver_id", req.Identity, "error", err)
	}
}

func (h *driverHandlers) tripCompleted(ctx context.Context, req *dispatch.Request) {
	bookingID := req.Envelope.String("bookingId")
	h.logger.Info("driver completed trip", "driver_id", req.Identity, "booking_id", bookingID)
	h.record(ctx, models.DriverEvent{
		DriverID:  req.Identity,
		Kind:      models.DriverEventTripCompleted,
		BookingID: bookingID,
		Payload:   req.Envelope.Payload,
	})
}

func (h *driverHandlers) record(ctx context.Context, e models.DriverEvent) {
	if h.deps.Events == nil {
		return
	}
	e.RecordedAt = time.Now().UTC()
	if err := h.deps.Events.Record(ctx, e); err != nil {
		h.logger.Error("record driver event", "driver_id", e.DriverID, "kind", e.Kind, "error", err)
	}
}
