package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-realtime/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]Envelope
}

func (s *recordingSender) SendTo(identity string, env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]Envelope)
	}
	s.sent[identity] = append(s.sent[identity], env)
}

func (s *recordingSender) get(identity string) []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.sent[identity]...)
}

type mapNamer map[string]string

func (m mapNamer) Resolve(_ context.Context, coords string) string { return m[coords] }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyRideRequestResolvesNames(t *testing.T) {
	drivers, riders := &recordingSender{}, &recordingSender{}
	n := NewNotifier(drivers, riders, mapNamer{"1,2": "Koramangala", "3,4": "Airport"}, testLogger())

	n.NotifyRideRequest(context.Background(), "d1", models.RideRequestNotice{BookingID: "b1", Pickup: "1,2", Drop: "3,4"})

	require.Eventually(t, func() bool { return len(drivers.get("d1")) == 1 }, time.Second, 5*time.Millisecond)
	env := drivers.get("d1")[0]
	assert.Equal(t, TypeNewRideRequest, env.Type)
	assert.Equal(t, "Koramangala", env.Payload["pickupLocationName"])
	assert.Equal(t, "Airport", env.Payload["dropLocationName"])
	assert.Empty(t, riders.get("d1"))
}

func TestNotifyRideStatus(t *testing.T) {
	riders := &recordingSender{}
	n := NewNotifier(&recordingSender{}, riders, mapNamer{}, testLogger())

	n.NotifyRideStatus("r1", models.RideStatusNotice{BookingID: "b1", Status: "IN_PROGRESS", Message: "Ride started"})
	n.NotifyRideStatus("r1", models.RideStatusNotice{BookingID: "b1", Status: "PICKUP"})
	n.NotifyDriverLocation("r1", models.DriverLocationUpdate{DriverID: "d1", Latitude: 1, Longitude: 2})

	got := riders.get("r1")
	require.Len(t, got, 3)
	assert.Equal(t, TypeRideStatusUpdate, got[0].Type)
	assert.Equal(t, TypeDriverArrived, got[1].Type)
	assert.Equal(t, TypeDriverLocation, got[2].Type)
	assert.Equal(t, 2.0, got[2].Payload["lng"])
}

func TestWebhookSinkPostsPayloadUnchanged(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL, testLogger())
	require.NoError(t, s.post(context.Background(), "d1", map[string]any{"type": "BOOKING_RESPONSE", "response": "ACCEPT"}))
	assert.Equal(t, "d1", body["driverId"])
	assert.Equal(t, map[string]any{"type": "BOOKING_RESPONSE", "response": "ACCEPT"}, body["response"])
}
