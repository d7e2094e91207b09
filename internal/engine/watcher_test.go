// internal/engine/watcher_test.go
package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axpilot/axpilot/api/schemas"
)

// countingRunner records the intents it was asked to run.
type countingRunner struct {
	intents []schemas.ActionPlan
}

func (r *countingRunner) Run(ctx context.Context, intent schemas.ActionPlan) (Outcome, error) {
	r.intents = append(r.intents, intent)
	return Outcome{State: StateDone, Result: &schemas.PlanResult{Status: schemas.PlanSuccess}}, nil
}

func TestWatcherResumesPendingIntentOnce(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pending := NewPendingStore(logger)
	runner := &countingRunner{}
	w := NewWatcher("sess-1", pending, runner, 0, logger)

	pending.Save("sess-1", schemas.ActionPlan{TraceID: "trace-1", Action: "search_flights"})

	w.HandlePageLoad(context.Background())
	// A second load event (redirect chain, soft reload) must not replay.
	w.HandlePageLoad(context.Background())

	require.Len(t, runner.intents, 1)
	assert.Equal(t, "trace-1", runner.intents[0].TraceID)
	assert.Equal(t, "search_flights", runner.intents[0].Action)
}

func TestWatcherIgnoresLoadWithoutPending(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pending := NewPendingStore(logger)
	runner := &countingRunner{}
	w := NewWatcher("sess-1", pending, runner, 0, logger)

	w.HandlePageLoad(context.Background())

	assert.Empty(t, runner.intents)
}

func TestWatcherIgnoresOtherSessionsPending(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pending := NewPendingStore(logger)
	runner := &countingRunner{}
	w := NewWatcher("sess-1", pending, runner, 0, logger)

	pending.Save("sess-2", schemas.ActionPlan{TraceID: "other"})

	w.HandlePageLoad(context.Background())

	assert.Empty(t, runner.intents)
	_, ok := pending.Claim("sess-2")
	assert.True(t, ok, "other session's entry must be untouched")
}

func TestWatcherAbandonsResumeOnCancelledContext(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pending := NewPendingStore(logger)
	runner := &countingRunner{}
	w := NewWatcher("sess-1", pending, runner, time.Minute, logger)

	pending.Save("sess-1", schemas.ActionPlan{TraceID: "trace-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.HandlePageLoad(ctx)

	assert.Empty(t, runner.intents)
}
