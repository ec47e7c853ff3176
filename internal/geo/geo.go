package geo

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-realtime/internal/models"
)

// LocationUpdater is the driver-matching side's intake for location updates.
// Calls are fire-and-forget: implementations log their own failures.
type LocationUpdater interface {
	UpdateDriverLocation(ctx context.Context, u models.DriverLocationUpdate)
}

// Index keeps the latest position per driver in memory.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverLocationUpdate
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverLocationUpdate)}
}

func (g *Index) UpdateDriverLocation(_ context.Context, u models.DriverLocationUpdate) {
	if u.RecordedAt.IsZero() {
		u.RecordedAt = time.Now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[u.DriverID] = u
}

func (g *Index) Get(driverID string) (models.DriverLocationUpdate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.drivers[driverID]
	return u, ok
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.drivers)
}

// Fanout forwards every update to each updater in order.
type Fanout []LocationUpdater

func (f Fanout) UpdateDriverLocation(ctx context.Context, u models.DriverLocationUpdate) {
	for _, up := range f {
		up.UpdateDriverLocation(ctx, u)
	}
}
