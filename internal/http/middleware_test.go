package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records decodes every JSON log line written so far.
func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func (b *syncBuffer) find(t *testing.T, msg string) map[string]any {
	for _, rec := range b.records(t) {
		if rec["msg"] == msg {
			return rec
		}
	}
	return nil
}

func newMiddlewareServer(t *testing.T) (*Server, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	s := &Server{
		mux:    mux.NewRouter(),
		logger: slog.New(slog.NewJSONHandler(logs, nil)),
	}
	s.registerMiddleware()
	return s, logs
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	s, _ := newMiddlewareServer(t)
	var seen string
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc-123", seen)

	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), seen)
}

func TestPanicBecomesInternalError(t *testing.T) {
	s, logs := newMiddlewareServer(t)
	s.mux.HandleFunc("/admin/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	panicked := logs.find(t, "panic recovered")
	require.NotNil(t, panicked)
	assert.Equal(t, "/admin/boom", panicked["route"])
	assert.Equal(t, "boom", panicked["error"])
}

func TestAccessLogTagsChannel(t *testing.T) {
	s, logs := newMiddlewareServer(t)
	s.mux.HandleFunc("/ws/driver/{driverId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	s.mux.HandleFunc("/api/resolve", func(http.ResponseWriter, *http.Request) {})

	s.mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/driver/d42", nil))
	s.mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/resolve", nil))

	var ws, api map[string]any
	for _, rec := range logs.records(t) {
		switch rec["route"] {
		case "/ws/driver/{driverId}":
			ws = rec
		case "/api/resolve":
			api = rec
		}
	}
	require.NotNil(t, ws)
	assert.Equal(t, "http_request", ws["msg"])
	assert.Equal(t, "driver", ws["channel"])
	assert.Equal(t, "d42", ws["identity"])
	require.NotNil(t, api)
	assert.NotContains(t, api, "channel")
}

func TestUpgradedSessionIsLoggedPerChannel(t *testing.T) {
	s, logs := newMiddlewareServer(t)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.mux.HandleFunc("/ws/rider-notifications", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, _, _ = ws.ReadMessage()
	})
	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/rider-notifications?riderId=r7", nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool { return logs.find(t, "ws_session") != nil }, 2*time.Second, 10*time.Millisecond)
	session := logs.find(t, "ws_session")
	assert.Equal(t, "rider-notifications", session["channel"])
	assert.Equal(t, "r7", session["identity"])
	assert.Equal(t, float64(http.StatusSwitchingProtocols), session["status"])
	assert.Nil(t, logs.find(t, "http_request"))
}

func TestChannelOf(t *testing.T) {
	assert.Equal(t, "driver", channelOf("/ws/driver/{driverId}"))
	assert.Equal(t, "driver-location", channelOf("/ws/driver-location"))
	assert.Empty(t, channelOf("/api/resolve"))
	assert.Empty(t, channelOf("/admin/ws/x"))
}
