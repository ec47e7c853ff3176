package dispatch

import (
	"context"
	"log/slog"

	"github.com/example/ride-realtime/internal/observability"
	"github.com/example/ride-realtime/internal/session"
)

// Request is one inbound envelope together with the connection it arrived on.
type Request struct {
	Conn     session.Conn
	Identity string // bound identity of the connection, falls back to the sender
	Envelope Envelope
}

type HandlerFunc func(ctx context.Context, req *Request)

// Table routes envelopes to the fixed set of handlers of one channel.
type Table struct {
	channel  string
	handlers map[MessageType]HandlerFunc
	logger   *slog.Logger
}

func NewTable(channel string, logger *slog.Logger) *Table {
	return &Table{channel: channel, handlers: make(map[MessageType]HandlerFunc), logger: logger}
}

func (t *Table) Register(typ MessageType, fn HandlerFunc) {
	t.handlers[typ] = fn
}

// Dispatch runs the handler for req's type. Unknown types are logged and dropped.
func (t *Table) Dispatch(ctx context.Context, req *Request) bool {
	fn, ok := t.handlers[req.Envelope.Type]
	if !ok {
		observability.MessagesTotal.WithLabelValues(t.channel, "unknown", "dropped").Inc()
		t.logger.Warn("unknown message type", "channel", t.channel, "type", req.Envelope.Type, "identity", req.Identity)
		return false
	}
	observability.MessagesTotal.WithLabelValues(t.channel, string(req.Envelope.Type), "handled").Inc()
	fn(ctx, req)
	return true
}
