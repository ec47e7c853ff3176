package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-realtime/internal/models"
)

func TestIndexKeepsLatest(t *testing.T) {
	g := NewIndex()
	g.UpdateDriverLocation(context.Background(), models.DriverLocationUpdate{DriverID: "d1", Latitude: 1, Longitude: 2})
	g.UpdateDriverLocation(context.Background(), models.DriverLocationUpdate{DriverID: "d1", Latitude: 3, Longitude: 4})

	u, ok := g.Get("d1")
	require.True(t, ok)
	assert.Equal(t, 3.0, u.Latitude)
	assert.False(t, u.RecordedAt.IsZero())
	assert.Equal(t, 1, g.Len())
}

func TestFanoutReachesEveryUpdater(t *testing.T) {
	a, b := NewIndex(), NewIndex()
	Fanout{a, b}.UpdateDriverLocation(context.Background(), models.DriverLocationUpdate{DriverID: "d9", Latitude: 5, Longitude: 6})
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestMetaKey(t *testing.T) {
	assert.Equal(t, "driver:meta:d1", MetaKey("d1"))
}
