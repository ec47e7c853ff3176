package models

import "time"

// DriverLocationUpdate is handed by value to the matching side; nothing here keeps a copy.
type DriverLocationUpdate struct {
	DriverID   string    `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

type DriverEventKind string

const (
	DriverEventStatus        DriverEventKind = "STATUS"
	DriverEventTripCompleted DriverEventKind = "TRIP_COMPLETED"
)

// DriverEvent is a journal record for driver messages that carry no state transition here.
type DriverEvent struct {
	DriverID   string          `json:"driver_id"`
	Kind       DriverEventKind `json:"kind"`
	Status     string          `json:"status,omitempty"`
	BookingID  string          `json:"booking_id,omitempty"`
	Payload    map[string]any  `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// RideRequestNotice is what the booking side asks us to push to a driver.
type RideRequestNotice struct {
	BookingID   string  `json:"bookingId"`
	RiderID     string  `json:"riderId"`
	Pickup      string  `json:"pickup"` // "lat,lng"
	Drop        string  `json:"drop"`   // "lat,lng"
	VehicleType string  `json:"vehicleType,omitempty"`
	Fare        float64 `json:"fare,omitempty"`
}

type RideStatusNotice struct {
	BookingID string `json:"bookingId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}
