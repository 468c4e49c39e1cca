package persist

import (
	"context"
	"fmt"

	"github.com/user/coachline/internal/types"
)

// Loader hydrates a transcript from persisted records when resuming a prior
// conversation. Loaded entries are always complete; this path never
// reconstructs streaming state.
type Loader struct {
	sessions types.SessionStore
	entries  types.EntryStore
}

// NewLoader wires a loader over the given stores.
func NewLoader(sessions types.SessionStore, entries types.EntryStore) *Loader {
	return &Loader{sessions: sessions, entries: entries}
}

// Load fetches the session and its entries ordered by sequence number.
// Tool-call records replay with their invocation payload intact; records of
// unknown kind degrade to text entries keyed by their role so a transcript
// written by a newer client still loads.
func (l *Loader) Load(ctx context.Context, id types.SessionID) (*types.Session, []*types.Entry, error) {
	session, err := l.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	records, err := l.entries.List(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load entries: %w", err)
	}

	entries := make([]*types.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, rehydrate(rec))
	}
	return session, entries, nil
}

func rehydrate(rec *types.Entry) *types.Entry {
	entry := *rec
	entry.InProgress = false

	switch entry.Kind {
	case types.KindToolCall:
		if entry.Tool == nil {
			entry.Kind = types.KindText
		}
	case types.KindText, types.KindReasoning, types.KindError:
	case types.KindPlan:
		if entry.Plan == nil {
			entry.Kind = types.KindText
		}
	case types.KindWorkerResult:
		if entry.Worker == nil {
			entry.Kind = types.KindText
		}
	case types.KindReport:
		if entry.Report == nil {
			entry.Kind = types.KindText
		}
	case types.KindAgentSwitch:
		if entry.Agent == nil {
			entry.Kind = types.KindText
		}
	default:
		entry.Kind = types.KindText
	}
	if entry.Role != types.RoleUser {
		entry.Role = types.RoleAssistant
	}
	return &entry
}
