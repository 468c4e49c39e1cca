// Package wire defines the event-stream protocol spoken over the duplex
// connection to the agent backend. Inbound frames are an envelope whose Data
// shape depends on the envelope type; Decode resolves the union into a typed
// Event so downstream code never touches raw JSON.
package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope types.
const (
	TypeRaw       = "raw"
	TypeOrchestra = "orchestra"
	TypeFinish    = "finish"
	TypeExample   = "example"
	TypeNew       = "new"
)

// Raw delta types.
const (
	DeltaText       = "text"
	DeltaReason     = "reason"
	DeltaToolCall   = "tool_call"
	DeltaToolOutput = "tool_call_output"
)

// Orchestra item types.
const (
	OrchestraPlan   = "plan"
	OrchestraWorker = "worker"
	OrchestraReport = "report"
)

// Envelope is the outer frame of every inbound message.
type Envelope struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	RequireConfirm bool            `json:"requireConfirm,omitempty"`
}

// Delta is one increment of streamed content. For tool_call deltas the tool
// name rides in Delta and the serialized arguments in Argument; for
// tool_call_output the output rides in Delta.
type Delta struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	CallID     string `json:"callid,omitempty"`
	Argument   string `json:"argument,omitempty"`
	InProgress bool   `json:"inprogress,omitempty"`
}

// PlanItem is an orchestra plan payload.
type PlanItem struct {
	Analysis string   `json:"analysis"`
	Todo     []string `json:"todo"`
}

// WorkerItem is an orchestra worker payload.
type WorkerItem struct {
	Task   string `json:"task"`
	Output string `json:"output"`
}

// ReportItem is an orchestra report payload.
type ReportItem struct {
	Output string `json:"output"`
}

// Orchestra is a decoded orchestra frame; exactly one item pointer is set
// according to Type.
type Orchestra struct {
	Type   string
	Plan   *PlanItem
	Worker *WorkerItem
	Report *ReportItem
}

// NewAgent announces a handoff to a different agent.
type NewAgent struct {
	Name string `json:"name"`
}

// Example is the suggested starter query pushed by the backend on connect.
type Example struct {
	Query string `json:"query"`
}

// Event is a fully decoded inbound frame. Type always matches one of the
// envelope constants; the pointer corresponding to the type is non-nil
// (finish carries no data).
type Event struct {
	Type      string
	Raw       *Delta
	Orchestra *Orchestra
	Agent     *NewAgent
	Example   *Example
}

// Decode parses an inbound frame. It returns an error for malformed JSON,
// an empty envelope type, or data that does not match the envelope type;
// callers drop such frames at the protocol boundary.
func Decode(data []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type")
	}

	ev := &Event{Type: env.Type}
	switch env.Type {
	case TypeRaw:
		var d Delta
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode raw data: %w", err)
		}
		if d.Type == "" {
			return nil, fmt.Errorf("raw data missing type")
		}
		ev.Raw = &d
	case TypeOrchestra:
		orch, err := decodeOrchestra(env.Data)
		if err != nil {
			return nil, err
		}
		ev.Orchestra = orch
	case TypeNew:
		var a NewAgent
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("decode new agent data: %w", err)
		}
		ev.Agent = &a
	case TypeExample:
		var ex Example
		if err := json.Unmarshal(env.Data, &ex); err != nil {
			return nil, fmt.Errorf("decode example data: %w", err)
		}
		ev.Example = &ex
	case TypeFinish:
		// finish carries no data
	default:
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return ev, nil
}

func decodeOrchestra(data []byte) (*Orchestra, error) {
	var head struct {
		Type string          `json:"type"`
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode orchestra data: %w", err)
	}

	orch := &Orchestra{Type: head.Type}
	switch head.Type {
	case OrchestraPlan:
		var item PlanItem
		if err := json.Unmarshal(head.Item, &item); err != nil {
			return nil, fmt.Errorf("decode plan item: %w", err)
		}
		orch.Plan = &item
	case OrchestraWorker:
		var item WorkerItem
		if err := json.Unmarshal(head.Item, &item); err != nil {
			return nil, fmt.Errorf("decode worker item: %w", err)
		}
		orch.Worker = &item
	case OrchestraReport:
		var item ReportItem
		if err := json.Unmarshal(head.Item, &item); err != nil {
			return nil, fmt.Errorf("decode report item: %w", err)
		}
		orch.Report = &item
	default:
		return nil, fmt.Errorf("unknown orchestra item type %q", head.Type)
	}
	return orch, nil
}

// HistoryMessage is one prior conversation turn attached to an outbound query.
type HistoryMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Query starts a turn. Context carries token-budgeted prior turns so the
// backend can ground its response in the conversation so far.
type Query struct {
	Type    string           `json:"type"`
	Query   string           `json:"query"`
	Context []HistoryMessage `json:"context,omitempty"`
	UserID  string           `json:"user_id,omitempty"`
}

// NewQuery builds an outbound query frame.
func NewQuery(query string, history []HistoryMessage) *Query {
	return &Query{Type: "query", Query: query, Context: history}
}

// Finish is the cancellation frame. It tells the backend to stop producing
// deltas for the current turn without closing the connection.
type Finish struct {
	Type string `json:"type"`
}

// NewFinish builds an outbound finish frame.
func NewFinish() *Finish {
	return &Finish{Type: "finish"}
}
