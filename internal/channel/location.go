package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-realtime/internal/dispatch"
	"github.com/example/ride-realtime/internal/models"
)

var errNoDriverID = errors.New("location message without driver id")

// locationUpdate reads {latitude, longitude} from the nested "location"
// object, or from the top level when the client sends them flat.
func locationUpdate(driverID string, env dispatch.Envelope) (models.DriverLocationUpdate, error) {
	if driverID == "" {
		return models.DriverLocationUpdate{}, errNoDriverID
	}
	src := env.Payload
	if loc, ok := env.Payload["location"].(map[string]any); ok {
		src = loc
	}
	lat, err := dispatch.Float(src["latitude"])
	if err != nil {
		return models.DriverLocationUpdate{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := dispatch.Float(src["longitude"])
	if err != nil {
		return models.DriverLocationUpdate{}, fmt.Errorf("longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.DriverLocationUpdate{}, fmt.Errorf("coordinates out of range: %f,%f", lat, lng)
	}
	return models.DriverLocationUpdate{
		DriverID:   driverID,
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: time.Now().UTC(),
	}, nil
}
