package bus

const TopicBookingResponse = "booking.response"

// BookingResponseReceived is published when a driver answers a booking offer.
// Payload is the envelope exactly as the driver sent it.
type BookingResponseReceived struct {
	DriverID string         `json:"driverId"`
	Payload  map[string]any `json:"payload"`
}
