package channel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(u, header)
}

func TestDriverChannelOverWebSocket(t *testing.T) {
	f := newFixture(t)
	f.deps.Transport = TransportOptions{AllowedOrigins: []string{"http://localhost:3000"}, PingInterval: time.Second}
	ep := NewDriverChannel(f.deps)

	mux := http.NewServeMux()
	mux.Handle("/ws/driver/", ep)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ws, _, err := dial(t, srv, "/ws/driver/d42", nil)
	require.NoError(t, err)

	var greeting map[string]any
	require.NoError(t, ws.ReadJSON(&greeting))
	assert.Equal(t, "CONNECTION_ESTABLISHED", greeting["type"])
	assert.True(t, ep.IsConnected("d42"))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "REGISTER", "driverId": "d42"}))
	var ack map[string]any
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, "REGISTRATION_CONFIRMED", ack["type"])

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return !ep.IsConnected("d42") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, ep.Sessions())
}

func TestUpgradeRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	f.deps.Transport = TransportOptions{AllowedOrigins: []string{"http://localhost:3000"}}
	srv := httptest.NewServer(NewRiderNotificationChannel(f.deps))
	defer srv.Close()

	_, resp, err := dial(t, srv, "/ws/rider-notifications", http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
