package dispatch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/ride-realtime/internal/models"
)

// Sender is a channel endpoint's send-by-identity primitive.
type Sender interface {
	SendTo(identity string, env Envelope)
}

// LocationNamer turns a "lat,lng" key into a display name.
type LocationNamer interface {
	Resolve(ctx context.Context, coords string) string
}

// Notifier pushes backend notifications to drivers and riders.
type Notifier struct {
	drivers Sender
	riders  Sender
	names   LocationNamer
	logger  *slog.Logger
}

func NewNotifier(drivers, riders Sender, names LocationNamer, logger *slog.Logger) *Notifier {
	return &Notifier{drivers: drivers, riders: riders, names: names, logger: logger}
}

// NotifyRideRequest returns immediately. Pickup and drop names are resolved
// in the background and the offer is sent once both are known, so a slow
// geocoder never holds up the caller.
func (n *Notifier) NotifyRideRequest(ctx context.Context, driverID string, req models.RideRequestNotice) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		var pickup, drop string
		var g errgroup.Group
		g.Go(func() error { pickup = n.names.Resolve(ctx, req.Pickup); return nil })
		g.Go(func() error { drop = n.names.Resolve(ctx, req.Drop); return nil })
		_ = g.Wait()

		n.logger.Info("sending ride request", "driver_id", driverID, "booking_id", req.BookingID)
		n.drivers.SendTo(driverID, NewEnvelope(TypeNewRideRequest, map[string]any{
			"driverId":           driverID,
			"bookingId":          req.BookingID,
			"riderId":            req.RiderID,
			"pickupLocation":     req.Pickup,
			"dropLocation":       req.Drop,
			"pickupLocationName": pickup,
			"dropLocationName":   drop,
			"vehicleType":        req.VehicleType,
			"fare":               req.Fare,
		}))
	}()
}

// NotifyRideStatus tells a rider about a booking status change. PICKUP is
// announced as DRIVER_ARRIVED, which rider apps treat specially.
func (n *Notifier) NotifyRideStatus(riderID string, s models.RideStatusNotice) {
	t := TypeRideStatusUpdate
	if s.Status == "PICKUP" {
		t = TypeDriverArrived
	}
	n.riders.SendTo(riderID, NewEnvelope(t, map[string]any{
		"riderId":   riderID,
		"bookingId": s.BookingID,
		"status":    s.Status,
		"message":   s.Message,
	}))
}

func (n *Notifier) NotifyDriverLocation(riderID string, u models.DriverLocationUpdate) {
	n.riders.SendTo(riderID, NewEnvelope(TypeDriverLocation, map[string]any{
		"riderId":  riderID,
		"driverId": u.DriverID,
		"lat":      u.Latitude,
		"lng":      u.Longitude,
	}))
}
