package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/ride-realtime/internal/observability"
)

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeMiss          Outcome = "miss"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeParseError    Outcome = "parse_error"
	OutcomeCached        Outcome = "cached"
	OutcomeFallback      Outcome = "fallback"
	OutcomeBlank         Outcome = "blank"
	// OutcomeAbandoned marks a caller that stopped waiting before the
	// shared lookup finished. Its answer is never cached.
	OutcomeAbandoned Outcome = "abandoned"
)

const (
	SourceCache    = "cache"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// Result is the typed outcome of one resolution.
type Result struct {
	Name    string
	Source  string
	Outcome Outcome
}

// Resolver turns "lat,lng" keys into display names through a provider
// chain and memoizes every answer, fallbacks included.
type Resolver struct {
	primary   Provider // optional
	secondary Provider // optional
	cache     Cache
	group     singleflight.Group
	logger    *slog.Logger
}

type Options struct {
	Primary   Provider
	Secondary Provider
	Cache     Cache
	Logger    *slog.Logger
}

func NewResolver(o Options) *Resolver {
	if o.Cache == nil {
		o.Cache = NewCache(0, 0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Resolver{
		primary:   o.Primary,
		secondary: o.Secondary,
		cache:     o.Cache,
		logger:    o.Logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, coords string) string {
	return r.ResolveResult(ctx, coords).Name
}

// ResolveAsync resolves off the caller's goroutine and hands the name to done.
// Cancelling ctx does not abort the lookup; provider request timeouts bound it.
func (r *Resolver) ResolveAsync(ctx context.Context, coords string, done func(string)) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		done(r.Resolve(ctx, coords))
	}()
}

func (r *Resolver) ResolveResult(ctx context.Context, coords string) Result {
	if strings.TrimSpace(coords) == "" {
		return Result{Name: UnknownLocation, Source: SourceNone, Outcome: OutcomeBlank}
	}
	if name, ok := r.cache.Get(coords); ok {
		observability.LocationCacheLookups.WithLabelValues("hit").Inc()
		return Result{Name: name, Source: SourceCache, Outcome: OutcomeCached}
	}
	observability.LocationCacheLookups.WithLabelValues("miss").Inc()

	// The shared lookup is detached from any single caller so that one
	// caller going away cannot turn everyone's answer into a fallback.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(coords, func() (any, error) {
		if name, ok := r.cache.Get(coords); ok {
			return Result{Name: name, Source: SourceCache, Outcome: OutcomeCached}, nil
		}
		res := r.run(shared, coords)
		r.cache.Add(coords, res.Name)
		return res, nil
	})
	select {
	case v := <-ch:
		return v.Val.(Result)
	case <-ctx.Done():
		r.logger.Debug("reverse geocoding abandoned", "coordinates", coords, "error", ctx.Err())
		return abandoned(coords)
	}
}

// abandoned answers a caller that stopped waiting, without touching the cache.
func abandoned(coords string) Result {
	lat, lng, err := ParseCoordinates(coords)
	if err != nil {
		return Result{Name: coords, Source: SourceFallback, Outcome: OutcomeAbandoned}
	}
	return Result{Name: FormatFallback(lat, lng), Source: SourceFallback, Outcome: OutcomeAbandoned}
}

func (r *Resolver) run(ctx context.Context, coords string) Result {
	lat, lng, err := ParseCoordinates(coords)
	if err != nil {
		r.logger.Warn("invalid coordinate format", "coordinates", coords, "error", err)
		return Result{Name: coords, Source: SourceFallback, Outcome: OutcomeParseError}
	}

	for _, p := range []Provider{r.primary, r.secondary} {
		if p == nil {
			continue
		}
		if name, ok := r.attempt(ctx, p, lat, lng); ok {
			return Result{Name: name, Source: p.Name(), Outcome: OutcomeSuccess}
		}
	}
	return Result{Name: FormatFallback(lat, lng), Source: SourceFallback, Outcome: OutcomeFallback}
}

func (r *Resolver) attempt(ctx context.Context, p Provider, lat, lng float64) (string, bool) {
	start := time.Now()
	name, err := p.Reverse(ctx, lat, lng)
	observability.GeocodeLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	outcome := classify(name, err)
	observability.GeocodeAttempts.WithLabelValues(p.Name(), string(outcome)).Inc()
	switch outcome {
	case OutcomeSuccess:
		return name, true
	case OutcomeMiss:
		r.logger.Debug("reverse geocoding miss", "provider", p.Name(), "lat", lat, "lng", lng)
	default:
		r.logger.Warn("reverse geocoding failed", "provider", p.Name(), "lat", lat, "lng", lng, "outcome", outcome, "error", err)
	}
	return "", false
}

func classify(name string, err error) Outcome {
	var syntaxErr *json.SyntaxError
	switch {
	case err == nil && strings.TrimSpace(name) != "":
		return OutcomeSuccess
	case err == nil, errors.Is(err, ErrNoResult):
		return OutcomeMiss
	case errors.Is(err, ErrBadResponse), errors.As(err, &syntaxErr):
		return OutcomeParseError
	default:
		return OutcomeProviderError
	}
}

func (r *Resolver) CacheSize() int { return r.cache.Len() }

func (r *Resolver) ClearCache() { r.cache.Purge() }
