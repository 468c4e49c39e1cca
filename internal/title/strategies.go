package title

import (
	"context"
	"regexp"
	"strings"

	"github.com/user/coachline/pkg/llm"
)

// Completer is the slice of llm.Provider the remote strategy needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error)
}

const remoteInstruction = "Generate a concise title of at most eight words for a conversation " +
	"that begins with the following message. Respond with the title text only, " +
	"no quotes and no trailing punctuation.\n\nMessage: "

// Remote asks a text-generation service for a title. Any failure, whether
// network, empty result, or out-of-bounds length, falls through silently to
// the next strategy.
type Remote struct {
	completer Completer
}

// NewRemote creates the remote-model strategy.
func NewRemote(completer Completer) Remote {
	return Remote{completer: completer}
}

func (Remote) Name() string { return "remote" }

func (r Remote) Generate(ctx context.Context, input string) (string, bool) {
	resp, err := r.completer.Complete(ctx, []llm.Message{
		{Role: "user", Content: remoteInstruction + input},
	})
	if err != nil {
		return "", false
	}

	candidate := resp.Content
	if i := strings.IndexByte(candidate, '\n'); i >= 0 {
		candidate = candidate[:i]
	}
	candidate = strings.Trim(candidate, "\"'` ")
	candidate = normalize(candidate)
	if len(candidate) <= 3 || len(candidate) >= 60 {
		return "", false
	}
	return candidate, true
}

// intentPatterns are tried in order; the first whose capture group normalizes
// into 3-50 characters wins.
var intentPatterns = []*regexp.Regexp{
	// Career transition: "I want to become a Solution Architect in SAP".
	regexp.MustCompile(`(?i)\b(?:become|transition\s+(?:to|into)|switch\s+(?:to|into)|move\s+into)\s+(?:an?\s+)?([a-z][a-z0-9+/#& ]*?)(?:\s+(?:in|at|with|for)\s.*)?[\s.?!]*$`),
	// Certification request: "get certified in SAP HANA".
	regexp.MustCompile(`(?i)\bcertif(?:y|ied|ication|ications)\b.*?\b(?:in|for|as|on)\s+(?:an?\s+)?([a-z0-9][a-z0-9+/#& ]*?)[\s.?!]*$`),
	// Experience statement: "I'm an SAP consultant with 3 years experience".
	regexp.MustCompile(`(?i)\bi(?:'m|\s+am)\s+(?:an?\s+)?([a-z0-9][a-z0-9+/#& ]*?)\s+with\s+\d+\+?\s*years?\b`),
	// Specialization: "I specialize in data migration".
	regexp.MustCompile(`(?i)\bspecializ(?:e|ing|ed)\s+in\s+([a-z0-9][a-z0-9+/#& ]*?)[\s.?!]*$`),
	// Planning question: "what's my path to..." / "how do I...".
	regexp.MustCompile(`(?i)\b(?:what(?:'s|\s+is)\s+(?:my|the)\s+(?:path|roadmap|plan)\s+(?:to|for|towards?)|how\s+(?:do|can|should)\s+i)\s+([a-z0-9][a-z0-9+/#&' ]*?)[\s.?!]*$`),
}

// Pattern matches the input against an ordered list of intent expressions and
// titles the session with the first acceptable capture.
type Pattern struct{}

func (Pattern) Name() string { return "pattern" }

func (Pattern) Generate(_ context.Context, input string) (string, bool) {
	for _, re := range intentPatterns {
		m := re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		candidate := normalize(m[1])
		if len(candidate) >= 3 && len(candidate) <= 50 {
			return candidate, true
		}
	}
	return "", false
}

// domainKeywords is the fixed vocabulary the keyword strategy scans for,
// mapped to display form.
var domainKeywords = map[string]string{
	"sap":           "SAP",
	"abap":          "ABAP",
	"hana":          "HANA",
	"fiori":         "Fiori",
	"btp":           "BTP",
	"basis":         "Basis",
	"s/4hana":       "S/4HANA",
	"consultant":    "Consultant",
	"consulting":    "Consulting",
	"architect":     "Architect",
	"solution":      "Solution",
	"developer":     "Developer",
	"certification": "Certification",
	"certified":     "Certified",
	"career":        "Career",
	"migration":     "Migration",
	"cloud":         "Cloud",
	"integration":   "Integration",
	"analytics":     "Analytics",
	"security":      "Security",
	"functional":    "Functional",
	"technical":     "Technical",
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9/]*`)

// Keyword tokenizes the input and, when at least two domain keywords appear,
// joins the first three (in input order) as the title.
type Keyword struct{}

func (Keyword) Name() string { return "keyword" }

func (Keyword) Generate(_ context.Context, input string) (string, bool) {
	seen := make(map[string]bool)
	var matched []string
	for _, tok := range tokenPattern.FindAllString(input, -1) {
		display, ok := domainKeywords[strings.ToLower(tok)]
		if !ok || seen[display] {
			continue
		}
		seen[display] = true
		matched = append(matched, display)
		if len(matched) == 3 {
			break
		}
	}
	if len(matched) < 2 {
		return "", false
	}
	return normalize(strings.Join(matched, " ")), true
}

// fillerPhrases are greetings and lead-ins the fallback strips before
// truncating. Longer phrases sort first so compound lead-ins strip fully.
var fillerPhrases = append([]string{
	"hi,", "hi ", "hello,", "hello ", "hey,", "hey ", "so ",
}, fillerVerbs...)

const (
	fallbackMaxLen   = 50
	fallbackMinCut   = 20
	fallbackEllipsis = "..."
)

// Fallback always produces a title: strip filler, normalize, then truncate at
// a word boundary past the minimum cut, or hard-truncate when no boundary
// exists.
type Fallback struct{}

func (Fallback) Name() string { return "fallback" }

func (Fallback) Generate(_ context.Context, input string) (string, bool) {
	s := strings.TrimSpace(input)
	for stripped := true; stripped; {
		stripped = false
		lower := strings.ToLower(s)
		for _, phrase := range fillerPhrases {
			if strings.HasPrefix(lower, phrase) {
				s = strings.TrimSpace(s[len(phrase):])
				stripped = true
				break
			}
		}
	}

	s = normalize(s)
	if s == "" {
		return DefaultTitle, true
	}
	if len(s) <= fallbackMaxLen {
		return s, true
	}

	cut := fallbackMaxLen
	if i := strings.LastIndexByte(s[:fallbackMaxLen], ' '); i > fallbackMinCut {
		cut = i
	}
	return strings.TrimSpace(s[:cut]) + fallbackEllipsis, true
}
