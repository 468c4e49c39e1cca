package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/coachline/internal/title"
	"github.com/user/coachline/internal/types"
)

// memStore is an in-memory session+entry store whose Append can be made to
// block, for exercising the single-flight guard.
type memStore struct {
	mu         sync.Mutex
	sessions   map[types.SessionID]*types.Session
	entries    map[types.SessionID][]*types.Entry
	createErr  error
	appendGate chan struct{}
	appends    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[types.SessionID]*types.Session),
		entries:  make(map[types.SessionID][]*types.Entry),
	}
}

func (m *memStore) Create(_ context.Context, s *types.Session) (types.SessionID, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.SessionID == "" {
		s.SessionID = types.NewSessionID()
	}
	m.sessions[s.SessionID] = s
	return s.SessionID, nil
}

func (m *memStore) Get(_ context.Context, id types.SessionID) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) List(context.Context) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *memStore) Append(_ context.Context, id types.SessionID, e *types.Entry) error {
	if m.appendGate != nil {
		<-m.appendGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	e.Seq = int64(len(m.entries[id])) + 1
	m.entries[id] = append(m.entries[id], e)
	return nil
}

func (m *memStore) ListEntries(_ context.Context, id types.SessionID) ([]*types.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Entry(nil), m.entries[id]...), nil
}

// List implements types.EntryStore.
func (m *memStore) entryStore() types.EntryStore { return entryView{m} }

type entryView struct{ m *memStore }

func (v entryView) Append(ctx context.Context, id types.SessionID, e *types.Entry) error {
	return v.m.Append(ctx, id, e)
}

func (v entryView) List(ctx context.Context, id types.SessionID) ([]*types.Entry, error) {
	return v.m.ListEntries(ctx, id)
}

func (v entryView) Count(_ context.Context, id types.SessionID) (int64, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return int64(len(v.m.entries[id])), nil
}

func newCoordinator(store *memStore) *Coordinator {
	return NewCoordinator(store, store.entryStore(), types.StaticIdentity("owner-1"), title.Default(nil))
}

func TestEnsureSessionCreatesOnceWithTitle(t *testing.T) {
	store := newMemStore()
	c := newCoordinator(store)
	ctx := context.Background()

	id, err := c.EnsureSession(ctx, "I want to become a Solution Architect")
	if err != nil {
		t.Fatal(err)
	}
	again, err := c.EnsureSession(ctx, "different message")
	if err != nil {
		t.Fatal(err)
	}
	if id != again {
		t.Error("EnsureSession must be idempotent")
	}

	session, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.Title != "Solution Architect" {
		t.Errorf("title not stored with session, got %q", session.Title)
	}
	if session.OwnerID != "owner-1" {
		t.Errorf("owner not resolved, got %q", session.OwnerID)
	}
}

func TestEnsureSessionHardFails(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("store down")
	c := newCoordinator(store)

	_, err := c.EnsureSession(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected hard failure")
	}
	var createErr *SessionCreateError
	if !errors.As(err, &createErr) {
		t.Errorf("expected SessionCreateError, got %T", err)
	}
	if !errors.Is(err, store.createErr) {
		t.Error("underlying cause must be preserved")
	}
}

// Scenario: two logging calls fired before the first resolves. Exactly one
// write set goes through; the second is dropped.
func TestLogSingleFlightDropsConcurrentWrite(t *testing.T) {
	store := newMemStore()
	c := newCoordinator(store)
	ctx := context.Background()

	if _, err := c.EnsureSession(ctx, "hi"); err != nil {
		t.Fatal(err)
	}

	store.appendGate = make(chan struct{})
	first := make(chan bool)
	go func() {
		first <- c.Log(ctx, []*types.Entry{{ID: types.NewEntryID(), Kind: types.KindText, Text: "one"}})
	}()

	// Wait until the first call is blocked inside Append.
	deadline := time.After(2 * time.Second)
	for {
		if !c.inflight.TryAcquire(1) {
			break
		}
		c.inflight.Release(1)
		select {
		case <-deadline:
			t.Fatal("first log call never started")
		case <-time.After(time.Millisecond):
		}
	}

	if ok := c.Log(ctx, []*types.Entry{{ID: types.NewEntryID(), Kind: types.KindText, Text: "two"}}); ok {
		t.Error("second concurrent log call must be dropped")
	}

	close(store.appendGate)
	if ok := <-first; !ok {
		t.Error("first log call must succeed")
	}
	if store.appends != 1 {
		t.Errorf("expected exactly one persisted write, got %d", store.appends)
	}
}

func TestLogRefreshesSessionBookkeeping(t *testing.T) {
	store := newMemStore()
	c := newCoordinator(store)
	ctx := context.Background()

	id, err := c.EnsureSession(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}

	ok := c.Log(ctx, []*types.Entry{
		{ID: types.NewEntryID(), Role: types.RoleUser, Kind: types.KindText, Text: "hi"},
		{ID: types.NewEntryID(), Role: types.RoleAssistant, Kind: types.KindText, Text: "hello"},
	})
	if !ok {
		t.Fatal("log call must succeed")
	}

	session, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", session.MessageCount)
	}
	if session.LastMessageAt.IsZero() {
		t.Error("last message time not set")
	}
}

func TestLogBeforeSessionDropped(t *testing.T) {
	store := newMemStore()
	c := newCoordinator(store)

	if ok := c.Log(context.Background(), []*types.Entry{{ID: types.NewEntryID()}}); ok {
		t.Error("log before session creation must be dropped")
	}
}

func TestArchive(t *testing.T) {
	store := newMemStore()
	c := newCoordinator(store)
	ctx := context.Background()

	id, err := c.EnsureSession(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}
	c.Archive(ctx)

	session, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != types.SessionArchived {
		t.Errorf("expected archived, got %s", session.Status)
	}
}
