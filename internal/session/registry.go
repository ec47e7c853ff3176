package session

import "sync"

// Registry maps identity keys to live connections for one channel.
// A second index keyed by connection ID keeps RemoveByHandle exact:
// a stale handle that was replaced by a newer connection for the same
// key no longer owns the key and removing it is a no-op.
type Registry struct {
	mu       sync.RWMutex
	byKey    map[string]Conn
	byHandle map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:    make(map[string]Conn),
		byHandle: make(map[string]string),
	}
}

// Upsert binds key to conn, replacing whatever was there (last connect wins).
func (r *Registry) Upsert(key string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byKey[key]; ok && prev.ID() != conn.ID() {
		delete(r.byHandle, prev.ID())
	}
	if oldKey, ok := r.byHandle[conn.ID()]; ok && oldKey != key {
		delete(r.byKey, oldKey)
	}
	r.byKey[key] = conn
	r.byHandle[conn.ID()] = key
}

func (r *Registry) Get(key string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[key]
	return c, ok
}

// KeyOf returns the key conn currently owns, or "" if it owns none.
func (r *Registry) KeyOf(conn Conn) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byHandle[conn.ID()]
}

func (r *Registry) IsOpen(key string) bool {
	c, ok := r.Get(key)
	return ok && c.Open()
}

// RemoveByHandle drops the entry owned by conn. It reports whether anything was removed.
func (r *Registry) RemoveByHandle(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byHandle[conn.ID()]
	if !ok {
		return false
	}
	delete(r.byHandle, conn.ID())
	if cur, ok := r.byKey[key]; ok && cur.ID() == conn.ID() {
		delete(r.byKey, key)
	}
	return true
}

func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byKey[key]; ok {
		delete(r.byHandle, c.ID())
		delete(r.byKey, key)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Keys returns the registered identity keys in no particular order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	return keys
}
