package geo

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-realtime/internal/models"
	"github.com/example/ride-realtime/internal/observability"
)

const DefaultGeoKey = "drivers_geo"

// RedisGeo stores driver positions with GEOADD so the matching service can
// run radius queries against the same key.
type RedisGeo struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRedisGeo(addr, password, key string, logger *slog.Logger) *RedisGeo {
	if key == "" {
		key = DefaultGeoKey
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, timeout: 2 * time.Second, logger: logger}
}

func (r *RedisGeo) UpdateDriverLocation(ctx context.Context, u models.DriverLocationUpdate) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if u.RecordedAt.IsZero() {
		u.RecordedAt = time.Now()
	}
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: u.Longitude, Latitude: u.Latitude, Name: u.DriverID})
		p.HSet(ctx, MetaKey(u.DriverID), map[string]interface{}{
			"online":  strconv.FormatBool(true),
			"updated": u.RecordedAt.UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		observability.LocationUpdatesTotal.WithLabelValues("redis", "error").Inc()
		r.logger.Error("redis location update failed", "driver_id", u.DriverID, "error", err)
		return
	}
	observability.LocationUpdatesTotal.WithLabelValues("redis", "ok").Inc()
}

func (r *RedisGeo) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisGeo) Close() error { return r.client.Close() }

func MetaKey(id string) string { return "driver:meta:" + id }
