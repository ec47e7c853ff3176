package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("session: connection closed")

// Conn is the live connection handle stored in a Registry.
type Conn interface {
	ID() string
	Open() bool
	WriteText(b []byte) error
	Close() error
}

// WSConn wraps a gorilla connection. Writes are serialized because
// gorilla allows only one concurrent writer per connection.
type WSConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	open      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	c := &WSConn{id: uuid.NewString(), conn: conn, writeTimeout: writeTimeout}
	c.open.Store(true)
	return c
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) Open() bool { return c.open.Load() }

func (c *WSConn) WriteText(b []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

// Ping sends a control frame under the same write lock as data frames.
func (c *WSConn) Ping(timeout time.Duration) error {
	if !c.open.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

// Close is idempotent and also releases sockets already marked closed.
func (c *WSConn) Close() error {
	c.open.Store(false)
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// MarkClosed flags the handle as unusable without touching the socket;
// the read loop calls it once the peer is gone.
func (c *WSConn) MarkClosed() { c.open.Store(false) }
