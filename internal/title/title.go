// Package title produces a short session label from the first user utterance.
//
// Generation cascades through an ordered list of strategies; the first one to
// produce an acceptable candidate wins. The final fallback strategy always
// succeeds, so Generate never fails and never returns the raw input.
package title

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// DefaultTitle is returned when the input normalizes to nothing at all.
const DefaultTitle = "New conversation"

// Strategy proposes a title for an input, reporting whether it produced one.
// Strategies are pure with respect to their input; only the remote strategy
// performs I/O, which is why Generate carries a context.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, input string) (string, bool)
}

// Generator folds an ordered strategy list with first-success-wins.
type Generator struct {
	strategies []Strategy
}

// NewGenerator creates a generator that tries the given strategies in order.
func NewGenerator(strategies ...Strategy) *Generator {
	return &Generator{strategies: strategies}
}

// Default returns the standard cascade: remote model (when a provider is
// configured), intent patterns, domain keywords, then the truncating fallback.
func Default(completer Completer) *Generator {
	var strategies []Strategy
	if completer != nil {
		strategies = append(strategies, NewRemote(completer))
	}
	strategies = append(strategies, Pattern{}, Keyword{}, Fallback{})
	return NewGenerator(strategies...)
}

// Generate returns the title for the given first user message. Strategy
// failures fall through silently; the result is always non-empty.
func (g *Generator) Generate(ctx context.Context, input string) string {
	for _, s := range g.strategies {
		if title, ok := s.Generate(ctx, input); ok {
			slog.Debug("title generated", "strategy", s.Name(), "title", title)
			return title
		}
	}
	return DefaultTitle
}

// leadingArticles are dropped from the front of a candidate title.
var leadingArticles = []string{"a ", "an ", "the "}

// fillerVerbs are conversational lead-ins stripped from the front of a
// candidate title.
var fillerVerbs = []string{
	"i want to ",
	"i would like to ",
	"i'd like to ",
	"i need to ",
	"i am trying to ",
	"i'm trying to ",
	"can you ",
	"could you ",
	"please ",
	"help me with ",
	"help me ",
	"tell me about ",
	"tell me ",
}

// normalize applies the shared cleanup every strategy's candidate passes
// through: collapse whitespace, strip surrounding punctuation, drop leading
// articles and filler verbs, capitalize the first letter.
func normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})

	lower := strings.ToLower(s)
	for _, filler := range fillerVerbs {
		if strings.HasPrefix(lower, filler) {
			s = s[len(filler):]
			lower = lower[len(filler):]
		}
	}
	for _, article := range leadingArticles {
		if strings.HasPrefix(lower, article) {
			s = s[len(article):]
			break
		}
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
