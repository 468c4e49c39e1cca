// Package transcript folds the inbound event stream into an ordered,
// append-only list of transcript entries.
//
// Each entry moves through a small lifecycle: created in progress, grown by
// deltas while streaming, then completed and immutable. The reconciler is the
// single writer of that list; callers serialize access (the engine runs it on
// one goroutine).
package transcript

import (
	"log/slog"
	"time"

	"github.com/user/coachline/internal/types"
	"github.com/user/coachline/internal/wire"
)

// DefaultStaleTimeout bounds how long an entry may stay in progress without
// receiving a delta before the sweep force-completes it.
const DefaultStaleTimeout = 30 * time.Second

// Reconciler holds the ordered entry list plus an index of open tool
// invocations by call id. Apply is total: malformed or unmatched events are
// dropped and logged, never returned as errors.
type Reconciler struct {
	entries []*types.Entry
	open    map[string]*types.Entry

	staleAfter time.Duration
	now        func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStaleTimeout overrides the stale-entry timeout.
func WithStaleTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.staleAfter = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates an empty reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		open:       make(map[string]*types.Entry),
		staleAfter: DefaultStaleTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Entries returns a snapshot of the entry list in first-creation order. Each
// entry is a deep copy, so the snapshot stays stable while streaming entries
// keep growing under later deltas.
func (r *Reconciler) Entries() []*types.Entry {
	out := make([]*types.Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (r *Reconciler) Len() int {
	return len(r.entries)
}

// OpenCalls returns the number of tool invocations still awaiting output.
func (r *Reconciler) OpenCalls() int {
	return len(r.open)
}

// Apply folds one inbound event into the transcript.
func (r *Reconciler) Apply(ev *wire.Event) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case wire.TypeRaw:
		if ev.Raw == nil {
			slog.Debug("dropping raw event without payload")
			return
		}
		r.applyDelta(ev.Raw)
	case wire.TypeOrchestra:
		if ev.Orchestra == nil {
			slog.Debug("dropping orchestra event without payload")
			return
		}
		r.applyOrchestra(ev.Orchestra)
	case wire.TypeNew:
		if ev.Agent == nil || ev.Agent.Name == "" {
			slog.Debug("dropping agent switch without name")
			return
		}
		r.append(&types.Entry{
			Role:  types.RoleAssistant,
			Kind:  types.KindAgentSwitch,
			Agent: &types.AgentSwitch{Name: ev.Agent.Name},
		})
	case wire.TypeFinish:
		r.Finish()
	case wire.TypeExample:
		// Surfaced by the engine, not part of the transcript.
	default:
		slog.Debug("dropping event of unknown type", "type", ev.Type)
	}
}

func (r *Reconciler) applyDelta(d *wire.Delta) {
	switch d.Type {
	case wire.DeltaToolCall:
		r.startToolCall(d)
	case wire.DeltaToolOutput:
		r.fulfillToolCall(d)
	case wire.DeltaText:
		r.appendText(d, types.KindText)
	case wire.DeltaReason:
		r.appendText(d, types.KindReasoning)
	default:
		slog.Debug("dropping delta of unknown type", "delta_type", d.Type)
	}
}

// startToolCall opens a tool invocation. A duplicate start for an already
// open call id is ignored, so replays are idempotent.
func (r *Reconciler) startToolCall(d *wire.Delta) {
	if d.Delta == "" || d.CallID == "" {
		slog.Debug("dropping tool call start missing name or call id")
		return
	}
	if _, exists := r.open[d.CallID]; exists {
		slog.Debug("ignoring duplicate tool call start", "call_id", d.CallID)
		return
	}
	entry := r.append(&types.Entry{
		Role: types.RoleAssistant,
		Kind: types.KindToolCall,
		Tool: &types.ToolInvocation{
			ToolName: d.Delta,
			Argument: d.Argument,
			CallID:   d.CallID,
		},
		InProgress: true,
	})
	r.open[d.CallID] = entry
}

// fulfillToolCall completes an open invocation. Output without a matching
// open call is dropped; it never creates an orphan entry.
func (r *Reconciler) fulfillToolCall(d *wire.Delta) {
	entry, ok := r.open[d.CallID]
	if !ok {
		slog.Debug("dropping tool output with no open call", "call_id", d.CallID)
		return
	}
	entry.Tool.Output = d.Delta
	entry.InProgress = false
	entry.UpdatedAt = r.now()
	delete(r.open, d.CallID)
}

// appendText folds a text or reasoning delta. If the most recent entry is an
// assistant entry of the same kind still streaming, the delta concatenates
// onto it and the event's in-progress flag carries over, which lets an empty
// terminal delta close the entry. Otherwise a non-empty delta starts a new
// entry. Empty deltas never create entries or grow payloads.
func (r *Reconciler) appendText(d *wire.Delta, kind types.Kind) {
	if last := r.last(); last != nil &&
		last.Role == types.RoleAssistant &&
		last.Kind == kind &&
		last.InProgress {
		last.Text += d.Delta
		last.InProgress = d.InProgress
		last.UpdatedAt = r.now()
		return
	}
	if d.Delta == "" {
		return
	}
	r.append(&types.Entry{
		Role:       types.RoleAssistant,
		Kind:       kind,
		Text:       d.Delta,
		InProgress: d.InProgress,
	})
}

func (r *Reconciler) applyOrchestra(o *wire.Orchestra) {
	entry := &types.Entry{Role: types.RoleAssistant}
	switch o.Type {
	case wire.OrchestraPlan:
		entry.Kind = types.KindPlan
		entry.Plan = &types.PlanResult{Analysis: o.Plan.Analysis, Todo: o.Plan.Todo}
	case wire.OrchestraWorker:
		entry.Kind = types.KindWorkerResult
		entry.Worker = &types.WorkerResult{Task: o.Worker.Task, Output: o.Worker.Output}
	case wire.OrchestraReport:
		entry.Kind = types.KindReport
		entry.Report = &types.ReportResult{Output: o.Report.Output}
	default:
		slog.Debug("dropping orchestra item of unknown type", "item_type", o.Type)
		return
	}
	r.append(entry)
}

// AppendUser records a user utterance as an immediately complete entry.
func (r *Reconciler) AppendUser(text string) *types.Entry {
	return r.append(&types.Entry{
		Role: types.RoleUser,
		Kind: types.KindText,
		Text: text,
	})
}

// AppendError records a local error notice in the transcript.
func (r *Reconciler) AppendError(text string) *types.Entry {
	return r.append(&types.Entry{
		Role: types.RoleAssistant,
		Kind: types.KindError,
		Text: text,
	})
}

// Finish force-completes the last assistant text or reasoning entry if it is
// still streaming. This closes the race between the final delta and the
// finish signal. Open tool invocations are left to the stale sweep since
// their outputs may still arrive.
func (r *Reconciler) Finish() {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.Role != types.RoleAssistant {
			continue
		}
		if e.Kind != types.KindText && e.Kind != types.KindReasoning {
			continue
		}
		if e.InProgress {
			e.InProgress = false
			e.UpdatedAt = r.now()
		}
		return
	}
}

// Interrupt force-completes every streaming entry and clears the open tool
// index. Called when the user cancels a turn so the transcript never shows a
// lingering in-progress indicator while the backend winds down.
func (r *Reconciler) Interrupt() {
	now := r.now()
	for _, e := range r.entries {
		if e.InProgress {
			e.InProgress = false
			e.UpdatedAt = now
		}
	}
	clear(r.open)
}

// SweepStale force-completes entries that have been streaming longer than the
// stale timeout, flagging them as fallback closures. Each entry can only be
// swept once because completion removes it from the streaming set.
func (r *Reconciler) SweepStale() int {
	now := r.now()
	var swept int
	for _, e := range r.entries {
		if !e.InProgress {
			continue
		}
		lastActivity := e.UpdatedAt
		if lastActivity.IsZero() {
			lastActivity = e.CreatedAt
		}
		if now.Sub(lastActivity) < r.staleAfter {
			continue
		}
		e.InProgress = false
		e.Fallback = true
		e.UpdatedAt = now
		if e.Kind == types.KindToolCall && e.Tool != nil {
			delete(r.open, e.Tool.CallID)
		}
		swept++
		slog.Warn("force-completed stale entry", "entry_id", string(e.ID), "kind", string(e.Kind))
	}
	return swept
}

// Load seeds the reconciler with previously persisted entries. Loaded history
// is always complete; it never re-enters the streaming state.
func (r *Reconciler) Load(entries []*types.Entry) {
	r.entries = r.entries[:0]
	clear(r.open)
	for _, e := range entries {
		e.InProgress = false
		r.entries = append(r.entries, e)
	}
}

func (r *Reconciler) last() *types.Entry {
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

func (r *Reconciler) append(e *types.Entry) *types.Entry {
	now := r.now()
	if e.ID == "" {
		e.ID = types.NewEntryID()
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	r.entries = append(r.entries, e)
	return e
}
