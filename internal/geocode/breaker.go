package geocode

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

type breakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker trips after five consecutive provider failures and probes
// again after cooldown. Clean misses do not count as failures.
func WithBreaker(p Provider, cooldown time.Duration, logger *slog.Logger) Provider {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoResult)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("geocode provider breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerProvider{next: p, cb: cb}
}

func (b *breakerProvider) Name() string { return b.next.Name() }

func (b *breakerProvider) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Reverse(ctx, lat, lng)
	})
	if err != nil {
		return "", err
	}
	name, _ := v.(string)
	return name, nil
}
