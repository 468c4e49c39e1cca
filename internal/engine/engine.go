// Package engine runs one live conversation: it owns the connection, the
// transcript reconciler, and the persistence coordinator for a session, and
// serializes every transcript mutation onto a single event loop.
//
// The engine is an explicit per-conversation context object. Nothing here is
// process-global, so several conversations can coexist in one process
// without sharing connection handles or in-flight guards.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/coachline/internal/persist"
	"github.com/user/coachline/internal/transcript"
	"github.com/user/coachline/internal/types"
	"github.com/user/coachline/internal/wire"
)

// DefaultSweepInterval is how often the stale-entry sweep runs.
const DefaultSweepInterval = 5 * time.Second

// Transport is the slice of conn.Conn the engine needs: an ordered inbound
// event stream plus outbound send/cancel primitives.
type Transport interface {
	Events() <-chan *wire.Event
	Send(q *wire.Query) error
	Cancel() error
}

// Engine coordinates one conversation end to end.
type Engine struct {
	transport Transport
	coord     *persist.Coordinator
	trim      *Trimmer

	sweepEvery time.Duration
	notify     func()

	mu      sync.Mutex
	rec     *transcript.Reconciler
	example string
	logged  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotify sets a callback invoked after every transcript change. The
// callback runs on the event loop and must not block.
func WithNotify(fn func()) Option {
	return func(e *Engine) { e.notify = fn }
}

// WithSweepInterval overrides how often stale entries are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepEvery = d }
}

// New wires an engine for one conversation.
func New(transport Transport, rec *transcript.Reconciler, coord *persist.Coordinator, trim *Trimmer, opts ...Option) *Engine {
	e := &Engine{
		transport:  transport,
		coord:      coord,
		trim:       trim,
		sweepEvery: DefaultSweepInterval,
		notify:     func() {},
		rec:        rec,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sweepEvery <= 0 {
		e.sweepEvery = DefaultSweepInterval
	}
	return e
}

// Start launches the event loop.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.loop()
}

// Stop terminates the event loop and waits for it to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// loop is the single consumer of inbound events. Timer ticks and network
// events are serialized here, so the reconciler never sees concurrent steps.
func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-e.transport.Events():
			if !ok {
				slog.Info("event stream closed")
				return
			}
			e.handle(ev)
		case <-ticker.C:
			e.mu.Lock()
			swept := e.rec.SweepStale()
			e.mu.Unlock()
			if swept > 0 {
				e.notify()
			}
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) handle(ev *wire.Event) {
	e.mu.Lock()
	if ev.Type == wire.TypeExample && ev.Example != nil {
		e.example = ev.Example.Query
		e.mu.Unlock()
		e.notify()
		return
	}
	e.rec.Apply(ev)

	var pending []*types.Entry
	if ev.Type == wire.TypeFinish {
		pending = e.collectCompleted()
	}
	e.mu.Unlock()

	if len(pending) > 0 {
		// Fire and forget: failures and drops are the coordinator's
		// business, never the transcript's.
		go e.coord.Log(e.ctx, pending)
	}
	e.notify()
}

// collectCompleted returns the contiguous run of completed entries that have
// not yet been handed to the coordinator. Caller must hold mu.
func (e *Engine) collectCompleted() []*types.Entry {
	entries := e.rec.Entries()
	var pending []*types.Entry
	for i := e.logged; i < len(entries); i++ {
		if entries[i].InProgress {
			break
		}
		pending = append(pending, entries[i])
	}
	e.logged += len(pending)
	return pending
}

// Send starts a turn: it ensures the session exists (the one hard-fail
// path), records the user entry, and transmits the query with token-budgeted
// history context. The transcript entry is only recorded once the transport
// accepts the frame.
func (e *Engine) Send(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if _, err := e.coord.EnsureSession(ctx, query); err != nil {
		return err
	}

	e.mu.Lock()
	history := e.trim.History(e.rec.Entries())
	e.mu.Unlock()

	if err := e.transport.Send(wire.NewQuery(query, history)); err != nil {
		return fmt.Errorf("send query: %w", err)
	}

	e.mu.Lock()
	e.rec.AppendUser(query)
	e.mu.Unlock()
	e.notify()
	return nil
}

// Cancel tells the backend to stop producing deltas and defensively clears
// every local in-progress indicator. The protocol's own finish event may
// still arrive later; by then there is nothing left streaming.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	e.rec.Interrupt()
	e.mu.Unlock()
	e.notify()

	if err := e.transport.Cancel(); err != nil {
		return fmt.Errorf("cancel turn: %w", err)
	}
	return nil
}

// Resume seeds the engine with a previously persisted conversation.
func (e *Engine) Resume(session *types.Session, entries []*types.Entry) {
	e.mu.Lock()
	e.rec.Load(entries)
	e.logged = len(entries)
	e.mu.Unlock()
	e.coord.Resume(session.SessionID)
}

// Entries returns a snapshot of the transcript.
func (e *Engine) Entries() []*types.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Entries()
}

// Example returns the backend's suggested starter query, if one arrived.
func (e *Engine) Example() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.example
}

// SessionID returns the persisted session id, or empty before the first send.
func (e *Engine) SessionID() types.SessionID {
	return e.coord.SessionID()
}
