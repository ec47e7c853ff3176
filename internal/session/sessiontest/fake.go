// Package sessiontest provides an in-memory session.Conn for tests.
package sessiontest

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrWriteFailed = errors.New("sessiontest: write failed")

type Conn struct {
	id string

	mu        sync.Mutex
	open      bool
	failWrite bool
	written   [][]byte
}

func NewConn() *Conn {
	return &Conn{id: uuid.NewString(), open: true}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Conn) WriteText(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.failWrite {
		return ErrWriteFailed
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// FailWrites makes every following write fail while the handle still reports open.
func (c *Conn) FailWrites() {
	c.mu.Lock()
	c.failWrite = true
	c.mu.Unlock()
}

// Written returns a copy of every frame written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}
