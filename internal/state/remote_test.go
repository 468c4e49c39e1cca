package state

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/user/coachline/internal/types"
)

// fakeStoreServer is a minimal in-memory implementation of the hosted store
// REST surface.
type fakeStoreServer struct {
	mu       sync.Mutex
	sessions map[types.SessionID]*types.Session
	entries  map[types.SessionID][]*types.Entry
}

func newFakeStoreServer() *fakeStoreServer {
	return &fakeStoreServer{
		sessions: make(map[types.SessionID]*types.Session),
		entries:  make(map[types.SessionID][]*types.Entry),
	}
}

func (f *fakeStoreServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var session types.Session
		if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		session.SessionID = types.NewSessionID()
		f.sessions[session.SessionID] = &session
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"session_id": session.SessionID})
	})
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := make([]*types.Session, 0, len(f.sessions))
		for _, s := range f.sessions {
			list = append(list, s)
		}
		json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		s, ok := f.sessions[types.SessionID(r.PathValue("id"))]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(s)
	})
	mux.HandleFunc("PATCH /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var session types.Session
		if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sessions[types.SessionID(r.PathValue("id"))] = &session
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /sessions/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		var entry types.Entry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := types.SessionID(r.PathValue("id"))
		f.mu.Lock()
		entry.Seq = int64(len(f.entries[id])) + 1
		f.entries[id] = append(f.entries[id], &entry)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"seq": entry.Seq})
	})
	mux.HandleFunc("GET /sessions/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.entries[types.SessionID(r.PathValue("id"))])
	})
	return mux
}

func TestRemoteStoreRoundTrip(t *testing.T) {
	fake := newFakeStoreServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sessions, entries := NewRemote(srv.URL, "secret")
	ctx := context.Background()

	id, err := sessions.Create(ctx, &types.Session{Title: "SAP Career"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected server-assigned id")
	}

	entry := &types.Entry{ID: types.NewEntryID(), Role: types.RoleUser, Kind: types.KindText, Text: "hi"}
	if err := entries.Append(ctx, id, entry); err != nil {
		t.Fatal(err)
	}
	if entry.Seq != 1 {
		t.Errorf("expected server-assigned seq 1, got %d", entry.Seq)
	}

	got, err := entries.List(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "hi" {
		t.Errorf("unexpected entries: %+v", got)
	}

	count, err := entries.Count(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	session, err := sessions.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	session.MessageCount = 1
	if err := sessions.Update(ctx, session); err != nil {
		t.Fatal(err)
	}

	list, err := sessions.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].MessageCount != 1 {
		t.Errorf("unexpected sessions: %+v", list)
	}
}

func TestRemoteStoreAuthFailure(t *testing.T) {
	fake := newFakeStoreServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sessions, _ := NewRemote(srv.URL, "wrong")
	if _, err := sessions.Create(context.Background(), &types.Session{}); err == nil {
		t.Fatal("expected error for rejected credentials")
	}
}
