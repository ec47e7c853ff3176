// Package channel implements the live-connection endpoints: each owns a
// session registry, runs the connect/message/close lifecycle for its
// sockets and dispatches inbound envelopes through a fixed handler table.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-realtime/internal/dispatch"
	"github.com/example/ride-realtime/internal/observability"
	"github.com/example/ride-realtime/internal/session"
)

type Name string

const (
	DriverLocation      Name = "driver-location"
	DriverNotifications Name = "driver-notifications"
	Driver              Name = "driver"
	RiderNotifications  Name = "rider-notifications"
)

// IdentityFunc derives the identity key from the upgrade request, "" if there is none.
type IdentityFunc func(r *http.Request) string

// GreetFunc builds the envelope sent right after a connection registers.
type GreetFunc func(identity string) dispatch.Envelope

type TransportOptions struct {
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

type Options struct {
	Identify IdentityFunc
	// BindFromEnvelope lets an anonymous connection take the sender id of
	// its first envelope that carries one.
	BindFromEnvelope bool
	// SenderKeys orders the payload keys that name the sender. Empty means
	// dispatch.DefaultSenderKeys.
	SenderKeys []string
	Greet      GreetFunc
	Transport  TransportOptions
	Logger     *slog.Logger
}

type Endpoint struct {
	name     Name
	sessions *session.Registry
	table    *dispatch.Table
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// client is the per-connection state owned by one read loop.
type client struct {
	conn     session.Conn
	identity string
}

func NewEndpoint(name Name, opts Options) *Endpoint {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Identify == nil {
		opts.Identify = func(*http.Request) string { return "" }
	}
	opts.Transport = opts.Transport.withDefaults()
	logger := opts.Logger.With("channel", string(name))
	return &Endpoint{
		name:     name,
		sessions: session.NewRegistry(),
		table:    dispatch.NewTable(string(name), logger),
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.Transport.AllowedOrigins),
		},
		logger: logger,
	}
}

func (e *Endpoint) Name() Name { return e.name }

// Handle registers the handler for one message type.
func (e *Endpoint) Handle(t dispatch.MessageType, fn dispatch.HandlerFunc) {
	e.table.Register(t, fn)
}

func (e *Endpoint) IsConnected(identity string) bool {
	return e.sessions.IsOpen(identity)
}

func (e *Endpoint) Sessions() int { return e.sessions.Len() }

// Identities lists the registered identities.
func (e *Endpoint) Identities() []string { return e.sessions.Keys() }

// Disconnect drops identity's registration and closes its connection.
func (e *Endpoint) Disconnect(identity string) bool {
	conn, ok := e.sessions.Get(identity)
	if !ok {
		return false
	}
	e.sessions.Remove(identity)
	e.updateGauge()
	_ = conn.Close()
	e.logger.Info("connection dropped by operator", "identity", identity, "conn_id", conn.ID())
	return true
}

// SendTo writes env to the connection registered for identity. It is best
// effort: a missing or closed connection is logged and skipped, and a failed
// write purges the connection right away.
func (e *Endpoint) SendTo(identity string, env dispatch.Envelope) {
	conn, ok := e.sessions.Get(identity)
	if !ok || !conn.Open() {
		observability.SendsTotal.WithLabelValues(string(e.name), "not_connected").Inc()
		e.logger.Warn("identity not connected, dropping message", "identity", identity, "type", env.Type)
		return
	}
	e.write(conn, env)
}

// Reply writes env straight to conn, whether or not it is registered.
func (e *Endpoint) Reply(conn session.Conn, env dispatch.Envelope) {
	e.write(conn, env)
}

func (e *Endpoint) write(conn session.Conn, env dispatch.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		observability.SendsTotal.WithLabelValues(string(e.name), "marshal_failed").Inc()
		e.logger.Error("marshal envelope", "type", env.Type, "error", err)
		return
	}
	if err := conn.WriteText(b); err != nil {
		observability.SendsTotal.WithLabelValues(string(e.name), "write_failed").Inc()
		identity := e.sessions.KeyOf(conn)
		if e.sessions.RemoveByHandle(conn) {
			e.updateGauge()
		}
		_ = conn.Close()
		e.logger.Error("write failed, connection purged", "identity", identity, "conn_id", conn.ID(), "type", env.Type, "error", err)
		return
	}
	observability.SendsTotal.WithLabelValues(string(e.name), "sent").Inc()
	e.logger.Debug("message sent", "conn_id", conn.ID(), "type", env.Type)
}

func (e *Endpoint) open(conn session.Conn, identity string) *client {
	observability.ConnectionsTotal.WithLabelValues(string(e.name)).Inc()
	c := &client{conn: conn}
	if identity == "" {
		if e.opts.BindFromEnvelope {
			e.logger.Debug("connection awaiting identity", "conn_id", conn.ID())
		} else {
			e.logger.Warn("connection established without identity", "conn_id", conn.ID())
		}
		return c
	}
	e.bind(c, identity)
	return c
}

func (e *Endpoint) bind(c *client, identity string) {
	c.identity = identity
	e.sessions.Upsert(identity, c.conn)
	e.updateGauge()
	e.logger.Info("connected", "identity", identity, "conn_id", c.conn.ID())
	if e.opts.Greet != nil {
		e.Reply(c.conn, e.opts.Greet(identity))
	}
}

// receive handles one text frame. Nothing here closes the connection.
func (e *Endpoint) receive(ctx context.Context, c *client, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("panic recovered in message handler", "identity", c.identity, "error", fmt.Sprint(rec))
		}
	}()

	env, err := dispatch.Parse(data)
	if err != nil {
		observability.MessagesTotal.WithLabelValues(string(e.name), "invalid", "dropped").Inc()
		e.logger.Warn("dropping invalid message", "identity", c.identity, "error", err)
		return
	}
	sender := env.Sender(e.opts.SenderKeys...)
	if c.identity == "" && e.opts.BindFromEnvelope && sender != "" {
		e.bind(c, sender)
	}
	identity := c.identity
	if identity == "" {
		identity = sender
	}
	e.table.Dispatch(ctx, &dispatch.Request{Conn: c.conn, Identity: identity, Envelope: env})
}

func (e *Endpoint) close(c *client) {
	if e.sessions.RemoveByHandle(c.conn) {
		e.updateGauge()
	}
	e.logger.Info("connection closed", "identity", c.identity, "conn_id", c.conn.ID())
}

func (e *Endpoint) updateGauge() {
	observability.SessionsOpen.WithLabelValues(string(e.name)).Set(float64(e.sessions.Len()))
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// the peer goes away. Frames are handled strictly in arrival order.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn := session.NewWSConn(ws, e.opts.Transport.WriteTimeout)
	c := e.open(conn, e.opts.Identify(r))
	defer e.close(c)
	defer conn.Close()

	ws.SetReadLimit(e.opts.Transport.ReadLimit)
	if interval := e.opts.Transport.PingInterval; interval > 0 {
		pongWait := 2 * interval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		stop := make(chan struct{})
		defer close(stop)
		go e.pingLoop(conn, interval, stop)
	}

	ctx := context.WithoutCancel(r.Context())
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			conn.MarkClosed()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("transport error", "identity", c.identity, "conn_id", conn.ID(), "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			e.logger.Debug("ignoring non-text frame", "identity", c.identity, "frame_type", mt)
			continue
		}
		e.receive(ctx, c, data)
	}
}

func (e *Endpoint) pingLoop(conn *session.WSConn, interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := conn.Ping(e.opts.Transport.WriteTimeout); err != nil {
				e.logger.Debug("ping failed", "conn_id", conn.ID(), "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	all := false
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			all = true
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || all {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// QueryIdentity reads the identity from a query parameter.
func QueryIdentity(param string) IdentityFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.URL.Query().Get(param))
	}
}

// PathIdentity reads the identity from the path segment after prefix.
func PathIdentity(prefix string) IdentityFunc {
	return func(r *http.Request) string {
		id, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || id == "" || strings.Contains(id, "/") {
			return ""
		}
		return id
	}
}
