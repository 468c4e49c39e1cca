// Package persist coordinates durable writes of sessions and transcript
// entries, and hydrates transcripts back out of the store.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/coachline/internal/title"
	"github.com/user/coachline/internal/types"
)

// SessionCreateError is the one persistence failure that aborts a send.
// Entry-level write failures are logged and absorbed; a conversation that
// cannot get a session record has nowhere to live.
type SessionCreateError struct {
	cause error
}

func (e *SessionCreateError) Error() string {
	return "create session: " + e.cause.Error()
}

func (e *SessionCreateError) Unwrap() error {
	return e.cause
}

// Coordinator owns durable writes for one conversation. It lazily creates
// the session on the first user message and appends entries best-effort FIFO.
//
// At most one logging operation is in flight at a time: a second call
// arriving while one is outstanding is dropped with a warning, never queued.
// Persistence is therefore at-most-once, and persisted order can diverge
// from display order when a write is dropped.
type Coordinator struct {
	sessions types.SessionStore
	entries  types.EntryStore
	identity types.IdentityProvider
	titles   *title.Generator

	inflight *semaphore.Weighted

	mu        sync.Mutex
	sessionID types.SessionID
}

// NewCoordinator wires a coordinator for one conversation.
func NewCoordinator(
	sessions types.SessionStore,
	entries types.EntryStore,
	identity types.IdentityProvider,
	titles *title.Generator,
) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		entries:  entries,
		identity: identity,
		titles:   titles,
		inflight: semaphore.NewWeighted(1),
	}
}

// SessionID returns the session id, or empty before the session exists.
func (c *Coordinator) SessionID() types.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// EnsureSession returns the session id, creating the session on first call.
// The title is generated from the first user message and stored with the
// session record, so it is durable before any entry is logged. Creation
// failure is the hard-fail path: the caller must abort the send.
func (c *Coordinator) EnsureSession(ctx context.Context, firstMessage string) (types.SessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		return c.sessionID, nil
	}

	owner, err := c.identity.Resolve(ctx)
	if err != nil {
		return "", &SessionCreateError{cause: err}
	}

	session := &types.Session{
		OwnerID:   owner,
		Title:     c.titles.Generate(ctx, firstMessage),
		Status:    types.SessionActive,
		StartedAt: time.Now(),
	}
	id, err := c.sessions.Create(ctx, session)
	if err != nil {
		return "", &SessionCreateError{cause: err}
	}
	c.sessionID = id
	slog.Info("session created", "session_id", string(id), "title", session.Title)
	return id, nil
}

// Log appends the given entries to the store in order and refreshes the
// session's message count and last-message time. It returns false without
// writing anything when another Log call is still in flight.
//
// Individual append failures are logged and skipped; they never surface to
// the caller and never roll back local transcript state.
func (c *Coordinator) Log(ctx context.Context, entries []*types.Entry) bool {
	id := c.SessionID()
	if id == "" {
		slog.Warn("dropping log call before session exists")
		return false
	}
	if !c.inflight.TryAcquire(1) {
		slog.Warn("logging already in flight, dropping write",
			"session_id", string(id),
			"entries", len(entries),
		)
		return false
	}
	defer c.inflight.Release(1)

	for _, entry := range entries {
		if err := c.entries.Append(ctx, id, entry); err != nil {
			slog.Error("append entry failed",
				"session_id", string(id),
				"entry_id", string(entry.ID),
				"error", err,
			)
		}
	}
	c.refreshSession(ctx, id)
	return true
}

// refreshSession recomputes the session's bookkeeping from the store. The
// count is eventually consistent with the persisted entries, not real-time.
func (c *Coordinator) refreshSession(ctx context.Context, id types.SessionID) {
	session, err := c.sessions.Get(ctx, id)
	if err != nil {
		slog.Error("refresh session failed", "session_id", string(id), "error", err)
		return
	}
	count, err := c.entries.Count(ctx, id)
	if err != nil {
		slog.Error("count entries failed", "session_id", string(id), "error", err)
		return
	}
	session.MessageCount = count
	session.LastMessageAt = time.Now()
	if err := c.sessions.Update(ctx, session); err != nil {
		slog.Error("update session failed", "session_id", string(id), "error", err)
	}
}

// Archive marks the session archived. A session that was never created is a
// no-op.
func (c *Coordinator) Archive(ctx context.Context) {
	id := c.SessionID()
	if id == "" {
		return
	}
	session, err := c.sessions.Get(ctx, id)
	if err != nil {
		slog.Error("archive session failed", "session_id", string(id), "error", err)
		return
	}
	session.Status = types.SessionArchived
	if err := c.sessions.Update(ctx, session); err != nil {
		slog.Error("archive session failed", "session_id", string(id), "error", err)
	}
}

// Resume binds the coordinator to an existing session instead of lazily
// creating one.
func (c *Coordinator) Resume(id types.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}
