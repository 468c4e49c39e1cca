package types

import "context"

// SessionStore persists session records. Create assigns the SessionID when
// the record carries none and returns the final id.
type SessionStore interface {
	Create(ctx context.Context, session *Session) (SessionID, error)
	Get(ctx context.Context, id SessionID) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Update(ctx context.Context, session *Session) error
}

// EntryStore persists transcript entries. Append assigns the entry's sequence
// number atomically on the store side; clients never compute sequence numbers.
type EntryStore interface {
	Append(ctx context.Context, sessionID SessionID, entry *Entry) error
	List(ctx context.Context, sessionID SessionID) ([]*Entry, error)
	Count(ctx context.Context, sessionID SessionID) (int64, error)
}

// IdentityProvider resolves the caller to an owner id that scopes session
// creation.
type IdentityProvider interface {
	Resolve(ctx context.Context) (string, error)
}

// StaticIdentity is an IdentityProvider that always returns a fixed owner id.
type StaticIdentity string

func (s StaticIdentity) Resolve(context.Context) (string, error) {
	return string(s), nil
}
