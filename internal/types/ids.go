package types

import "github.com/google/uuid"

type SessionID string
type EntryID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}
