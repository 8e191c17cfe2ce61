package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// OutputChannel is the outbound half of a session channel: typed UI events
// go out through it. Sends must not block the engine's emission path beyond
// the configured write timeout.
type OutputChannel interface {
	Send(ctx context.Context, ev UIEvent) error
}

// SessionConn wraps one WebSocket connection as an OutputChannel. Writes
// are serialized and bounded by a write timeout; a stalled UI client slows
// only its own session, never the engine.
type SessionConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// DefaultWriteTimeout bounds one outbound WebSocket write.
const DefaultWriteTimeout = 10 * time.Second

// NewSessionConn wraps an accepted WebSocket connection.
func NewSessionConn(conn *websocket.Conn, writeTimeout time.Duration) *SessionConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &SessionConn{conn: conn, writeTimeout: writeTimeout}
}

// Send marshals and writes one UI event with the write timeout applied.
func (c *SessionConn) Send(ctx context.Context, ev UIEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal UI event", "type", ev.Type, "error", err)
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

// Close closes the underlying connection.
func (c *SessionConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
