package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type MessageType string

// Inbound.
const (
	TypeRegister        MessageType = "REGISTER"
	TypeSubscribe       MessageType = "SUBSCRIBE"
	TypeLocation        MessageType = "LOCATION"
	TypeStatus          MessageType = "STATUS"
	TypeBookingResponse MessageType = "BOOKING_RESPONSE"
	TypeTripCompleted   MessageType = "TRIP_COMPLETED"
)

// Outbound.
const (
	TypeConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	TypeRegistrationConfirmed MessageType = "REGISTRATION_CONFIRMED"
	TypeSubscriptionConfirmed MessageType = "SUBSCRIPTION_CONFIRMED"
	TypeNewRideRequest        MessageType = "NEW_RIDE_REQUEST"
	TypeRideStatusUpdate      MessageType = "RIDE_STATUS_UPDATE"
	TypeDriverLocation        MessageType = "DRIVER_LOCATION"
	TypeDriverArrived         MessageType = "DRIVER_ARRIVED"
)

// Older driver apps prefix their message types.
var typeAliases = map[string]MessageType{
	"DRIVER_REGISTER": TypeRegister,
	"DRIVER_LOCATION": TypeLocation,
	"DRIVER_STATUS":   TypeStatus,
}

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrMissingType       = errors.New("envelope has no type")
)

// DefaultSenderKeys is the payload key order Parse uses for SenderID.
var DefaultSenderKeys = []string{"senderId", "driverId", "riderId"}

// Envelope is the unit exchanged over every channel. Payload holds the whole
// decoded object, type included, so it can be forwarded as received.
type Envelope struct {
	Type     MessageType
	SenderID string
	Payload  map[string]any
}

// NewEnvelope builds an outbound envelope. fields may be nil.
func NewEnvelope(t MessageType, fields map[string]any) Envelope {
	p := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		p[k] = v
	}
	p["type"] = string(t)
	return Envelope{Type: t, Payload: p}
}

// Parse decodes a text frame into an Envelope.
func Parse(data []byte) (Envelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if raw == nil {
		return Envelope{}, ErrMalformedEnvelope
	}
	t, _ := raw["type"].(string)
	t = strings.TrimSpace(t)
	if t == "" {
		return Envelope{}, ErrMissingType
	}
	mt := MessageType(t)
	if alias, ok := typeAliases[t]; ok {
		mt = alias
	}
	return Envelope{
		Type:     mt,
		SenderID: firstString(raw, DefaultSenderKeys...),
		Payload:  raw,
	}, nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = string(e.Type)
	}
	return json.Marshal(out)
}

// Sender returns the first non-empty payload field among keys, or SenderID
// when no keys are given.
func (e Envelope) Sender(keys ...string) string {
	if len(keys) == 0 {
		return e.SenderID
	}
	return firstString(e.Payload, keys...)
}

// String returns the payload field as a string; numbers are formatted.
func (e Envelope) String(key string) string {
	return stringValue(e.Payload[key])
}

// Float reads a numeric payload field; numeric strings are accepted.
func Float(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case nil:
		return 0, errors.New("missing value")
	default:
		return 0, fmt.Errorf("unsupported value %T", v)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
