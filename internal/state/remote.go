package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/coachline/internal/types"
)

// remoteClient is the shared HTTP transport for the hosted store. The store
// exposes a small REST surface:
//
//	POST   /sessions                 create, returns {"session_id": ...}
//	GET    /sessions                 list
//	GET    /sessions/{id}            fetch one
//	PATCH  /sessions/{id}            update metadata
//	POST   /sessions/{id}/entries    append, returns {"seq": ...}
//	GET    /sessions/{id}/entries    list ordered by seq
//
// The server assigns sequence numbers atomically on append.
type remoteClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func (c *remoteClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("store error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// RemoteSessionStore implements types.SessionStore against the hosted store.
type RemoteSessionStore struct {
	c *remoteClient
}

// RemoteEntryStore implements types.EntryStore against the hosted store.
type RemoteEntryStore struct {
	c *remoteClient
}

// NewRemote creates session and entry store clients for the hosted store at
// baseURL. token, when non-empty, is sent as a bearer credential.
func NewRemote(baseURL, token string) (*RemoteSessionStore, *RemoteEntryStore) {
	c := &remoteClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	return &RemoteSessionStore{c: c}, &RemoteEntryStore{c: c}
}

// Create stores a new session and returns the id the server assigned.
func (s *RemoteSessionStore) Create(ctx context.Context, session *types.Session) (types.SessionID, error) {
	var created struct {
		SessionID types.SessionID `json:"session_id"`
	}
	if err := s.c.do(ctx, http.MethodPost, "/sessions", session, &created); err != nil {
		return "", err
	}
	if created.SessionID == "" {
		return "", fmt.Errorf("store returned no session id")
	}
	session.SessionID = created.SessionID
	return created.SessionID, nil
}

// Get fetches one session record.
func (s *RemoteSessionStore) Get(ctx context.Context, id types.SessionID) (*types.Session, error) {
	var session types.Session
	if err := s.c.do(ctx, http.MethodGet, "/sessions/"+string(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// List fetches all session records.
func (s *RemoteSessionStore) List(ctx context.Context) ([]*types.Session, error) {
	var sessions []*types.Session
	if err := s.c.do(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Update patches a session's metadata.
func (s *RemoteSessionStore) Update(ctx context.Context, session *types.Session) error {
	return s.c.do(ctx, http.MethodPatch, "/sessions/"+string(session.SessionID), session, nil)
}

// Append stores one entry; the server assigns and returns the sequence number.
func (e *RemoteEntryStore) Append(ctx context.Context, sessionID types.SessionID, entry *types.Entry) error {
	var stored struct {
		Seq int64 `json:"seq"`
	}
	if err := e.c.do(ctx, http.MethodPost, "/sessions/"+string(sessionID)+"/entries", entry, &stored); err != nil {
		return err
	}
	entry.Seq = stored.Seq
	return nil
}

// List fetches the session's entries ordered by sequence number.
func (e *RemoteEntryStore) List(ctx context.Context, sessionID types.SessionID) ([]*types.Entry, error) {
	var entries []*types.Entry
	if err := e.c.do(ctx, http.MethodGet, "/sessions/"+string(sessionID)+"/entries", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of persisted entries for the session.
func (e *RemoteEntryStore) Count(ctx context.Context, sessionID types.SessionID) (int64, error) {
	entries, err := e.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}
