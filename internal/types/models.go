package types

import "time"

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind identifies the shape of a transcript entry's payload. Exactly one
// payload field on Entry is populated per kind.
type Kind string

const (
	KindText         Kind = "text"
	KindReasoning    Kind = "reasoning"
	KindToolCall     Kind = "tool_call"
	KindPlan         Kind = "plan"
	KindWorkerResult Kind = "worker_result"
	KindReport       Kind = "report"
	KindAgentSwitch  Kind = "agent_switch"
	KindError        Kind = "error"
)

// Session lifecycle states.
const (
	SessionActive   = "active"
	SessionArchived = "archived"
)

// Session is a persisted conversation container. The title is set once by the
// title generator when the session is created; everything else is bookkeeping
// maintained by the persistence coordinator. MessageCount is eventually
// consistent with the persisted entry count, not real-time.
type Session struct {
	SessionID     SessionID `json:"session_id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at,omitzero"`
	MessageCount  int64     `json:"message_count"`
}

// ToolInvocation is the payload of a tool_call entry. Output is empty while
// the invocation is open and is fulfilled exactly once by the matching
// tool_call_output event.
type ToolInvocation struct {
	ToolName string `json:"tool_name"`
	Argument string `json:"argument,omitempty"`
	Output   string `json:"output"`
	CallID   string `json:"call_id"`
}

// PlanResult is a planner analysis plus its todo list.
type PlanResult struct {
	Analysis string   `json:"analysis"`
	Todo     []string `json:"todo,omitempty"`
}

// WorkerResult is one subtask outcome from a worker agent.
type WorkerResult struct {
	Task   string `json:"task"`
	Output string `json:"output"`
}

// ReportResult is the final synthesized report of an orchestrated turn.
type ReportResult struct {
	Output string `json:"output"`
}

// AgentSwitch records a handoff to a different agent mid-turn.
type AgentSwitch struct {
	Name string `json:"name"`
}

// Entry is one logical unit of the conversation. Entries are append-only in
// arrival order; once InProgress flips to false the entry is immutable. The
// Kind tag selects which payload field is populated, so consumers switch on
// Kind and handle every case explicitly.
type Entry struct {
	ID         EntryID         `json:"id"`
	Seq        int64           `json:"seq,omitempty"`
	Role       Role            `json:"role"`
	Kind       Kind            `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Tool       *ToolInvocation `json:"tool,omitempty"`
	Plan       *PlanResult     `json:"plan,omitempty"`
	Worker     *WorkerResult   `json:"worker,omitempty"`
	Report     *ReportResult   `json:"report,omitempty"`
	Agent      *AgentSwitch    `json:"agent,omitempty"`
	InProgress bool            `json:"in_progress"`
	Fallback   bool            `json:"fallback,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at,omitzero"`
}

// Clone returns a deep copy of the entry, payload included. Snapshots handed
// to other goroutines are clones, so later streaming writes never show
// through them.
func (e *Entry) Clone() *Entry {
	copied := *e
	if e.Tool != nil {
		tool := *e.Tool
		copied.Tool = &tool
	}
	if e.Plan != nil {
		plan := *e.Plan
		plan.Todo = append([]string(nil), e.Plan.Todo...)
		copied.Plan = &plan
	}
	if e.Worker != nil {
		worker := *e.Worker
		copied.Worker = &worker
	}
	if e.Report != nil {
		report := *e.Report
		copied.Report = &report
	}
	if e.Agent != nil {
		agent := *e.Agent
		copied.Agent = &agent
	}
	return &copied
}

// Content returns the human-readable body of the entry regardless of kind.
func (e *Entry) Content() string {
	switch e.Kind {
	case KindToolCall:
		if e.Tool == nil {
			return ""
		}
		return e.Tool.Output
	case KindPlan:
		if e.Plan == nil {
			return ""
		}
		return e.Plan.Analysis
	case KindWorkerResult:
		if e.Worker == nil {
			return ""
		}
		return e.Worker.Output
	case KindReport:
		if e.Report == nil {
			return ""
		}
		return e.Report.Output
	case KindAgentSwitch:
		if e.Agent == nil {
			return ""
		}
		return e.Agent.Name
	default:
		return e.Text
	}
}
