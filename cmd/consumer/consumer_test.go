package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-realtime/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	mu       sync.Mutex
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	names    []string
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.names = append(f.names, loc.Name)
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	return nil
}

func (f *fakeUpdater) stored() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

var update = models.DriverLocationUpdate{DriverID: "d1", Latitude: 1, Longitude: 2}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	start := time.Now()
	if err := updateRedisWithRetry(context.Background(), f, "drivers_geo", update, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	if err := updateRedisWithRetry(context.Background(), f, "drivers_geo", update, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.geoCalls)
	}
}

func TestUpdateRedisWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := updateRedisWithRetry(ctx, f, "drivers_geo", update, 3, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type sliceReader struct {
	msgs []kafka.Message
}

func (s *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func TestConsumeSkipsInvalidMessages(t *testing.T) {
	r := &sliceReader{msgs: []kafka.Message{
		{Value: []byte(`{"driver_id":"d1","latitude":12.9,"longitude":77.6}`)},
		{Value: []byte(`not json`)},
		{Value: []byte(`{"latitude":1,"longitude":2}`)},
		{Value: []byte(`{"driver_id":"d2","latitude":13.0,"longitude":77.5}`)},
	}}
	f := &fakeUpdater{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consume(ctx, r, f, "drivers_geo", slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(f.stored()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out, stored=%v", f.stored())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	got := f.stored()
	if len(got) != 2 || got[0] != "d1" || got[1] != "d2" {
		t.Fatalf("unexpected drivers stored: %v", got)
	}
}
