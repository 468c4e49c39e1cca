// Package conn owns the long-lived duplex connection to the agent backend.
// One Conn serves one active view: it emits inbound events in exactly the
// order received and exposes send/cancel primitives for the outbound side.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/coachline/internal/wire"
)

// ErrNotConnected is returned by Send and Cancel while the connection is not
// open. Sends fail fast during reconnection; nothing is queued.
var ErrNotConnected = errors.New("not connected")

// State is the connection lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateOpen
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is a managed websocket connection. Inbound frames are decoded and
// delivered on the Events channel by a single reader goroutine, preserving
// arrival order. Malformed frames are dropped and logged, never delivered.
type Conn struct {
	url    string
	policy ReconnectPolicy
	dialer *websocket.Dialer

	state  atomic.Int32
	events chan *wire.Event

	writeMu sync.Mutex
	ws      *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// New creates an unopened connection to the given websocket URL.
func New(url string, policy ReconnectPolicy) *Conn {
	return &Conn{
		url:    url,
		policy: policy,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan *wire.Event, 64),
		done:   make(chan struct{}),
	}
}

// Open establishes the connection and starts the reader. The Events channel
// is closed once the connection is closed or reconnection attempts exhaust.
func (c *Conn) Open(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.setWS(ws)
	c.state.Store(int32(StateOpen))
	go c.readLoop(ctx)
	return nil
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Events returns the ordered inbound event stream.
func (c *Conn) Events() <-chan *wire.Event {
	return c.events
}

// Send transmits a query frame. It fails with ErrNotConnected unless the
// connection is open.
func (c *Conn) Send(q *wire.Query) error {
	return c.writeJSON(q)
}

// Cancel transmits a finish frame, telling the backend to stop producing
// deltas for the current turn. The connection stays open.
func (c *Conn) Cancel() error {
	return c.writeJSON(wire.NewFinish())
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.writeMu.Lock()
		if c.ws != nil {
			err = c.ws.Close()
		}
		c.writeMu.Unlock()
	})
	return err
}

func (c *Conn) writeJSON(v any) error {
	if c.State() != StateOpen {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Conn) setWS(ws *websocket.Conn) {
	c.writeMu.Lock()
	c.ws = ws
	c.writeMu.Unlock()
}

// readLoop reads frames until the transport fails, then hands off to
// reconnect. It is the only goroutine that sends on the events channel, so
// delivery order matches arrival order.
func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			select {
			case <-ctx.Done():
				c.state.Store(int32(StateClosed))
				return
			case <-c.done:
				return
			default:
			}
			slog.Warn("transport failure", "url", c.url, "error", err)
			c.state.Store(int32(StateDisconnected))
			if !c.reconnect(ctx) {
				c.state.Store(int32(StateClosed))
				return
			}
			c.state.Store(int32(StateOpen))
			continue
		}

		ev, err := wire.Decode(data)
		if err != nil {
			slog.Debug("dropping malformed frame", "error", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			c.state.Store(int32(StateClosed))
			return
		case <-c.done:
			return
		}
	}
}

// reconnect attempts to re-establish the transport within the policy bounds.
// Events produced by the backend during the gap are permanently lost.
func (c *Conn) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		select {
		case <-time.After(c.policy.Interval):
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		}

		ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			slog.Warn("reconnect attempt failed",
				"attempt", attempt,
				"max_attempts", c.policy.MaxAttempts,
				"error", err,
			)
			continue
		}
		c.setWS(ws)
		slog.Info("reconnected", "url", c.url, "attempt", attempt)
		return true
	}
	slog.Error("reconnect attempts exhausted", "url", c.url)
	return false
}
