// internal/engine/state.go
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/axpilot/axpilot/api/schemas"
)

// State is the plan loop's position in its lifecycle. Transitions are linear
// within one round (Planning → Executing → Diffing) and the loop re-enters
// Planning on retry or replan; Done, Clarify, and Failed are terminal.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateExecuting
	StateDiffing
	StateDone
	StateClarify
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateDiffing:
		return "diffing"
	case StateDone:
		return "done"
	case StateClarify:
		return "clarify"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrBudgetExhausted marks a run that consumed its outer retry budget without
// producing a clean plan execution.
var ErrBudgetExhausted = errors.New("plan retry budget exhausted")

// Outcome is the terminal result of one engine run.
type Outcome struct {
	State         State
	Result        *schemas.PlanResult
	Clarification *schemas.ClarificationRequest
}

// fixedSettle is the default QuiescencePolicy: wait a fixed delay for the
// page's reactions to an action to land in the accessibility tree.
type fixedSettle struct {
	delay time.Duration
}

// NewFixedSettle returns a QuiescencePolicy that waits the given delay.
func NewFixedSettle(delay time.Duration) schemas.QuiescencePolicy {
	return fixedSettle{delay: delay}
}

func (f fixedSettle) Settle(ctx context.Context) error {
	if f.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
