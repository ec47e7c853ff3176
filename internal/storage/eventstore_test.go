package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-realtime/internal/models"
)

func TestMemoryStoreByDriver(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, models.DriverEvent{DriverID: "d1", Kind: models.DriverEventStatus, Status: "ONLINE"}))
	require.NoError(t, s.Record(ctx, models.DriverEvent{DriverID: "d2", Kind: models.DriverEventStatus, Status: "BUSY"}))
	require.NoError(t, s.Record(ctx, models.DriverEvent{DriverID: "d1", Kind: models.DriverEventTripCompleted, BookingID: "42"}))

	got := s.ByDriver("d1")
	require.Len(t, got, 2)
	assert.Equal(t, "ONLINE", got[0].Status)
	assert.Equal(t, "42", got[1].BookingID)
	assert.Empty(t, s.ByDriver("nobody"))
}

func TestBoundedMemoryStoreDropsOldest(t *testing.T) {
	s := NewBoundedMemoryStore(3)
	ctx := context.Background()
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		require.NoError(t, s.Record(ctx, models.DriverEvent{DriverID: "d1", Kind: models.DriverEventTripCompleted, BookingID: id}))
	}

	require.Equal(t, 3, s.Len())
	got := s.ByDriver("d1")
	require.Len(t, got, 3)
	assert.Equal(t, "b3", got[0].BookingID)
	assert.Equal(t, "b5", got[2].BookingID)
	assert.LessOrEqual(t, cap(s.events), 4)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)
}
