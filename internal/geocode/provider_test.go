package geocode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonServer(t *testing.T, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleReverse(t *testing.T) {
	srv := jsonServer(t, `{"status":"OK","results":[{"formatted_address":"12, Brigade Road, Bengaluru"}]}`, func(r *http.Request) {
		assert.Equal(t, "12.971600,77.594600", r.URL.Query().Get("latlng"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
	})
	g := NewGoogle(srv.URL, "secret", srv.Client())

	name, err := g.Reverse(context.Background(), 12.9716, 77.5946)
	require.NoError(t, err)
	assert.Equal(t, "Brigade Road", name)
}

func TestGoogleStatuses(t *testing.T) {
	srv := jsonServer(t, `{"status":"ZERO_RESULTS","results":[]}`, nil)
	_, err := NewGoogle(srv.URL, "k", srv.Client()).Reverse(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNoResult)

	srv = jsonServer(t, `{"status":"REQUEST_DENIED"}`, nil)
	_, err = NewGoogle(srv.URL, "k", srv.Client()).Reverse(context.Background(), 1, 2)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoResult))

	srv = jsonServer(t, `not json`, nil)
	_, err = NewGoogle(srv.URL, "k", srv.Client()).Reverse(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestGoogleWithoutKeySkipsRequest(t *testing.T) {
	called := false
	srv := jsonServer(t, `{}`, func(*http.Request) { called = true })
	_, err := NewGoogle(srv.URL, "", srv.Client()).Reverse(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.False(t, called)
}

func TestNominatimPrefersAddressComponents(t *testing.T) {
	srv := jsonServer(t, `{"display_name":"x","address":{"city":"Bengaluru","neighbourhood":"Domlur"}}`, func(r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
	})
	name, err := NewNominatim(srv.URL, "", 0, srv.Client()).Reverse(context.Background(), 12.96, 77.63)
	require.NoError(t, err)
	assert.Equal(t, "Domlur", name)
}

func TestNominatimDisplayNameFallback(t *testing.T) {
	srv := jsonServer(t, `{"display_name":"42, Residency Road, Bengaluru","address":{"road":"Residency Road"}}`, nil)
	name, err := NewNominatim(srv.URL, "", 0, srv.Client()).Reverse(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Residency Road", name)
}

func TestNominatimErrorIsMiss(t *testing.T) {
	srv := jsonServer(t, `{"error":"Unable to geocode"}`, nil)
	_, err := NewNominatim(srv.URL, "", 0, srv.Client()).Reverse(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestNominatimDelayHonoursContext(t *testing.T) {
	srv := jsonServer(t, `{"address":{"city":"X"}}`, nil)
	n := NewNominatim(srv.URL, "", time.Hour, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := n.Reverse(ctx, 1, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	failing := &countingProvider{name: "google", err: errors.New("down")}
	p := WithBreaker(failing, time.Minute, discardLogger())
	for i := 0; i < 5; i++ {
		_, _ = p.Reverse(context.Background(), 1, 2)
	}
	_, err := p.Reverse(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Equal(t, int32(5), failing.calls.Load(), "open breaker must short-circuit")
}

func TestBreakerIgnoresMisses(t *testing.T) {
	missing := &countingProvider{name: "nominatim", err: ErrNoResult}
	p := WithBreaker(missing, time.Minute, discardLogger())
	for i := 0; i < 8; i++ {
		_, err := p.Reverse(context.Background(), 1, 2)
		assert.ErrorIs(t, err, ErrNoResult)
	}
	assert.Equal(t, int32(8), missing.calls.Load())
}
