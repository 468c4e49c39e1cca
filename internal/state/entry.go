package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/user/coachline/internal/types"
)

// EntryStore is a JSONL-backed append-only transcript store. Entries are
// stored per-session in sessions/<sessionID>/entries.jsonl. Sequence numbers
// are assigned on append under the session lock, so they are atomic from the
// client's point of view.
type EntryStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewEntryStore creates a new file-backed EntryStore rooted at the given directory.
func NewEntryStore(root string) *EntryStore {
	return &EntryStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (e *EntryStore) getLock(sessionID types.SessionID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lock, ok := e.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	e.locks[sessionID] = lock
	return lock
}

func (e *EntryStore) entriesPath(sessionID types.SessionID) string {
	return filepath.Join(e.root, "sessions", string(sessionID), "entries.jsonl")
}

// count reads the entry file and counts lines. Caller must hold the session lock.
func (e *EntryStore) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(e.entriesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open entries file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan entries file: %w", err)
	}
	return count, nil
}

// Append adds an entry to the session's transcript log with an
// auto-incremented sequence number.
func (e *EntryStore) Append(_ context.Context, sessionID types.SessionID, entry *types.Entry) error {
	lock := e.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(e.entriesPath(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	existing, err := e.count(sessionID)
	if err != nil {
		return err
	}
	entry.Seq = existing + 1

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	f, err := os.OpenFile(e.entriesPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open entries file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	return nil
}

// List returns the session's entries ordered by sequence number.
func (e *EntryStore) List(_ context.Context, sessionID types.SessionID) ([]*types.Entry, error) {
	lock := e.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(e.entriesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open entries file: %w", err)
	}
	defer f.Close()

	var entries []*types.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry types.Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan entries file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})

	return entries, nil
}

// Count returns the number of entries for the given session.
func (e *EntryStore) Count(_ context.Context, sessionID types.SessionID) (int64, error) {
	lock := e.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return e.count(sessionID)
}
