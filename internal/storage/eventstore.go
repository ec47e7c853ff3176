package storage

import (
	"context"
	"sync"

	"github.com/example/ride-realtime/internal/models"
)

// EventStore journals driver events that have no state transition of their own.
type EventStore interface {
	Record(ctx context.Context, e models.DriverEvent) error
}

// MemoryStore keeps events in process. With a limit it keeps only the most
// recent limit events.
type MemoryStore struct {
	mu     sync.RWMutex
	limit  int
	events []models.DriverEvent
}

// NewMemoryStore returns an unbounded store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewBoundedMemoryStore returns a store that drops its oldest event once it
// holds limit events. A limit <= 0 means unbounded.
func NewBoundedMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit}
}

func (m *MemoryStore) Record(_ context.Context, e models.DriverEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && len(m.events) >= m.limit {
		// Shift in place so the backing array never grows past limit.
		n := copy(m.events, m.events[len(m.events)-m.limit+1:])
		m.events = m.events[:n]
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// ByDriver returns the events recorded for driverID in arrival order.
func (m *MemoryStore) ByDriver(driverID string) []models.DriverEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DriverEvent
	for _, e := range m.events {
		if e.DriverID == driverID {
			out = append(out, e)
		}
	}
	return out
}
