package state

import (
	"context"
	"testing"
	"time"

	"github.com/user/coachline/internal/types"
)

func TestSessionStoreCreateAndGet(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	session := &types.Session{
		OwnerID:   "owner-1",
		Title:     "Solution Architect",
		StartedAt: time.Now(),
	}
	id, err := store.Create(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected assigned session id")
	}
	if session.Status != types.SessionActive {
		t.Errorf("expected active status, got %s", session.Status)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Solution Architect" || got.OwnerID != "owner-1" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestSessionStoreCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	session := &types.Session{SessionID: types.NewSessionID(), Title: "first"}
	if _, err := store.Create(ctx, session); err != nil {
		t.Fatal(err)
	}
	dup := &types.Session{SessionID: session.SessionID, Title: "second"}
	id, err := store.Create(ctx, dup)
	if err != nil {
		t.Fatal(err)
	}
	if id != session.SessionID {
		t.Errorf("duplicate create must return the existing id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "first" {
		t.Errorf("duplicate create must not overwrite, got title %q", got.Title)
	}
}

func TestSessionStoreUpdate(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	session := &types.Session{Title: "t"}
	id, err := store.Create(ctx, session)
	if err != nil {
		t.Fatal(err)
	}

	session.MessageCount = 4
	session.LastMessageAt = time.Now()
	session.Status = types.SessionArchived
	if err := store.Update(ctx, session); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != 4 || got.Status != types.SessionArchived {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := &types.Session{SessionID: "nope"}
	if err := store.Update(ctx, missing); err == nil {
		t.Error("expected error updating unknown session")
	}
}

func TestSessionStoreList(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, &types.Session{Title: "s"}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(list))
	}
}
