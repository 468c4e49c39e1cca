package engine

import (
	"strings"
	"testing"

	"github.com/user/coachline/internal/types"
)

func textEntry(role types.Role, text string) *types.Entry {
	return &types.Entry{ID: types.NewEntryID(), Role: role, Kind: types.KindText, Text: text}
}

func TestHistoryKeepsChronologicalOrder(t *testing.T) {
	trim := &Trimmer{budget: 1000}
	entries := []*types.Entry{
		textEntry(types.RoleUser, "first question"),
		textEntry(types.RoleAssistant, "first answer"),
		textEntry(types.RoleUser, "second question"),
	}

	history := trim.History(entries)
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	if history[0].Content != "first question" || history[2].Content != "second question" {
		t.Fatalf("history out of order: %+v", history)
	}
	if history[0].Sender != "user" || history[1].Sender != "assistant" {
		t.Fatalf("unexpected senders: %+v", history)
	}
}

func TestHistoryDropsOldestWhenOverBudget(t *testing.T) {
	// With the byte estimate each message below costs ~13 tokens, so a
	// budget of 30 fits the two most recent and drops the oldest.
	trim := &Trimmer{budget: 30}
	entries := []*types.Entry{
		textEntry(types.RoleUser, strings.Repeat("a", 50)),
		textEntry(types.RoleAssistant, strings.Repeat("b", 50)),
		textEntry(types.RoleUser, strings.Repeat("c", 50)),
	}

	history := trim.History(entries)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages within budget, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Content, "b") || !strings.HasPrefix(history[1].Content, "c") {
		t.Fatalf("expected the two newest messages, got %+v", history)
	}
}

func TestHistorySkipsStreamingAndNonTextEntries(t *testing.T) {
	trim := &Trimmer{budget: 1000}
	streaming := textEntry(types.RoleAssistant, "partial answer")
	streaming.InProgress = true
	entries := []*types.Entry{
		textEntry(types.RoleUser, "the question"),
		{ID: types.NewEntryID(), Role: types.RoleAssistant, Kind: types.KindReasoning, Text: "thinking out loud"},
		{ID: types.NewEntryID(), Role: types.RoleAssistant, Kind: types.KindToolCall, Tool: &types.ToolInvocation{ToolName: "search"}},
		streaming,
	}

	history := trim.History(entries)
	if len(history) != 1 {
		t.Fatalf("expected only the user message, got %+v", history)
	}
	if history[0].Content != "the question" {
		t.Fatalf("unexpected content %q", history[0].Content)
	}
}

func TestHistoryIncludesReports(t *testing.T) {
	trim := &Trimmer{budget: 1000}
	entries := []*types.Entry{
		textEntry(types.RoleUser, "run the analysis"),
		{ID: types.NewEntryID(), Role: types.RoleAssistant, Kind: types.KindReport, Report: &types.ReportResult{Output: "analysis complete"}},
	}

	history := trim.History(entries)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[1].Content != "analysis complete" {
		t.Fatalf("report output missing: %+v", history)
	}
}

func TestNewTrimmerDefaultsBudget(t *testing.T) {
	trim := NewTrimmer("gpt-4o-mini", 0)
	if trim.budget != DefaultHistoryBudget {
		t.Fatalf("budget = %d, want %d", trim.budget, DefaultHistoryBudget)
	}
}
