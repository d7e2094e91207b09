// internal/fastpath/matcher.go
// Package fastpath short-circuits trivial utterances ("scroll down", "go
// back") into single-step plans without a round trip to the planner. Anything
// it does not recognize with certainty falls through; the matcher never
// guesses.
package fastpath

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
)

// maxCommandWords bounds the utterances considered at all. Real commands in
// this class are two or three words; longer utterances carry intent the
// planner must interpret.
const maxCommandWords = 4

// command is the resolved action for one recognized phrase.
type command struct {
	action schemas.ActionType
	value  string
}

// phrases maps a normalized utterance to its command. Phrase matching is
// exact after normalization; there is deliberately no fuzzy matching here.
var phrases = map[string]command{
	"scroll down":      {schemas.ActionScroll, "down"},
	"scroll":           {schemas.ActionScroll, "down"},
	"down":             {schemas.ActionScroll, "down"},
	"page down":        {schemas.ActionScroll, "down"},
	"scroll up":        {schemas.ActionScroll, "up"},
	"up":               {schemas.ActionScroll, "up"},
	"page up":          {schemas.ActionScroll, "up"},
	"scroll to top":    {schemas.ActionScroll, "top"},
	"top":              {schemas.ActionScroll, "top"},
	"scroll to bottom": {schemas.ActionScroll, "bottom"},
	"bottom":           {schemas.ActionScroll, "bottom"},
	"go back":          {schemas.ActionHistoryBack, ""},
	"back":             {schemas.ActionHistoryBack, ""},
	"go forward":       {schemas.ActionHistoryForward, ""},
	"forward":          {schemas.ActionHistoryForward, ""},
	"reload":           {schemas.ActionReload, ""},
	"reload the page":  {schemas.ActionReload, ""},
	"refresh":          {schemas.ActionReload, ""},
	"refresh the page": {schemas.ActionReload, ""},
}

// triggerWords gates the table lookup: an utterance whose first word is not a
// known trigger can never match, so it skips normalization of the full table
// key space.
var triggerWords = map[string]bool{
	"scroll": true, "page": true, "go": true,
	"up": true, "down": true, "top": true, "bottom": true,
	"back": true, "forward": true,
	"reload": true, "refresh": true,
}

// Matcher recognizes trivial navigation commands.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher returns a Matcher.
func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger.Named("fastpath")}
}

// Match attempts to resolve an utterance into a single-step plan. The second
// return is false when the utterance must go to the planner instead.
func (m *Matcher) Match(utterance, traceID string, epoch uint64) (*schemas.Plan, bool) {
	normalized, words := normalize(utterance)
	if words == 0 || words > maxCommandWords {
		return nil, false
	}
	first := normalized
	if i := strings.IndexByte(normalized, ' '); i > 0 {
		first = normalized[:i]
	}
	if !triggerWords[first] {
		return nil, false
	}

	cmd, ok := phrases[normalized]
	if !ok {
		return nil, false
	}

	m.logger.Debug("Fast path matched utterance.",
		zap.String("trace_id", traceID),
		zap.String("utterance", normalized),
		zap.String("action", string(cmd.action)))

	return &schemas.Plan{
		SchemaVersion: schemas.SchemaPlan,
		ID:            uuid.NewString(),
		TraceID:       traceID,
		Epoch:         epoch,
		Steps: []schemas.Step{{
			StepID: uuid.NewString(),
			Action: cmd.action,
			Value:  cmd.value,
		}},
	}, true
}

// normalize lowercases the utterance, strips punctuation, and collapses
// whitespace, returning the result and its word count.
func normalize(s string) (string, int) {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	words := 0
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if lastSpace {
				words++
			}
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		default:
			// Punctuation is dropped entirely.
		}
	}
	return strings.TrimRight(b.String(), " "), words
}
