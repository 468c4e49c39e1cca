// Package state provides session and transcript-entry storage
// implementations: a filesystem-backed store for local use and an HTTP client
// for a hosted store.
package state

import "github.com/user/coachline/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionStore = (*SessionStore)(nil)
var _ types.EntryStore = (*EntryStore)(nil)
var _ types.SessionStore = (*RemoteSessionStore)(nil)
var _ types.EntryStore = (*RemoteEntryStore)(nil)
