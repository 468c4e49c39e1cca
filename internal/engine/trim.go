package engine

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/coachline/internal/types"
	"github.com/user/coachline/internal/wire"
)

// DefaultHistoryBudget caps how many tokens of prior conversation travel
// with each query.
const DefaultHistoryBudget = 4096

const fallbackEncoding = "cl100k_base"

// Trimmer builds the history context for outbound queries, keeping the most
// recent turns that fit within a token budget.
type Trimmer struct {
	enc    *tiktoken.Tiktoken
	budget int
}

// NewTrimmer returns a trimmer using the tokenizer for model. It degrades
// through cl100k_base down to a byte-length estimate rather than failing,
// since a miscounted budget only trims history a little early.
func NewTrimmer(model string, budget int) *Trimmer {
	if budget <= 0 {
		budget = DefaultHistoryBudget
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			slog.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
			enc = nil
		}
	}
	return &Trimmer{enc: enc, budget: budget}
}

// History converts the transcript into wire history messages, newest turns
// first dropped last. Only user text, assistant text, and final reports are
// worth resending; reasoning traces and tool chatter are not.
func (t *Trimmer) History(entries []*types.Entry) []wire.HistoryMessage {
	var kept []wire.HistoryMessage
	used := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.InProgress {
			continue
		}
		content := historyContent(entry)
		if content == "" {
			continue
		}
		cost := t.count(content)
		if used+cost > t.budget {
			break
		}
		used += cost
		kept = append(kept, wire.HistoryMessage{
			Sender:  string(entry.Role),
			Content: content,
		})
	}
	// kept is newest-first; the backend wants chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func historyContent(entry *types.Entry) string {
	switch entry.Kind {
	case types.KindText:
		return entry.Text
	case types.KindReport:
		if entry.Report != nil {
			return entry.Report.Output
		}
	}
	return ""
}

func (t *Trimmer) count(s string) int {
	if t.enc == nil {
		return len(s)/4 + 1
	}
	return len(t.enc.Encode(s, nil, nil))
}
