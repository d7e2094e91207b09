// internal/fastpath/matcher_test.go
package fastpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axpilot/axpilot/api/schemas"
)

func TestMatchRecognizedPhrases(t *testing.T) {
	m := NewMatcher(zaptest.NewLogger(t))

	cases := []struct {
		utterance string
		action    schemas.ActionType
		value     string
	}{
		{"scroll down", schemas.ActionScroll, "down"},
		{"Scroll Down!", schemas.ActionScroll, "down"},
		{"  scroll   up  ", schemas.ActionScroll, "up"},
		{"page down", schemas.ActionScroll, "down"},
		{"scroll to top", schemas.ActionScroll, "top"},
		{"go back", schemas.ActionHistoryBack, ""},
		{"back", schemas.ActionHistoryBack, ""},
		{"go forward", schemas.ActionHistoryForward, ""},
		{"refresh the page", schemas.ActionReload, ""},
		{"Reload.", schemas.ActionReload, ""},
	}
	for _, tc := range cases {
		t.Run(tc.utterance, func(t *testing.T) {
			plan, ok := m.Match(tc.utterance, "trace-1", 7)
			require.True(t, ok)
			require.Len(t, plan.Steps, 1)
			assert.Equal(t, tc.action, plan.Steps[0].Action)
			assert.Equal(t, tc.value, plan.Steps[0].Value)
			assert.Equal(t, "trace-1", plan.TraceID)
			assert.Equal(t, uint64(7), plan.Epoch)
			assert.NotEmpty(t, plan.ID)
			assert.NotEmpty(t, plan.Steps[0].StepID)
		})
	}
}

func TestMatchFallsThrough(t *testing.T) {
	m := NewMatcher(zaptest.NewLogger(t))

	cases := []string{
		"",
		"   ",
		"search for flights to tokyo",
		"go to the checkout page",
		"scroll down until you see the blue button",
		"click the search button",
		"backspace",
		"go",
	}
	for _, utterance := range cases {
		t.Run(utterance, func(t *testing.T) {
			_, ok := m.Match(utterance, "trace-1", 0)
			assert.False(t, ok)
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in    string
		out   string
		words int
	}{
		{"Scroll Down!", "scroll down", 2},
		{"  go   BACK.  ", "go back", 2},
		{"reload", "reload", 1},
		{"...", "", 0},
	}
	for _, tc := range cases {
		out, words := normalize(tc.in)
		assert.Equal(t, tc.out, out)
		assert.Equal(t, tc.words, words)
	}
}
