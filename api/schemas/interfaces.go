// api/schemas/interfaces.go
// Boundary contracts consumed or produced by the engine. Components depend on
// these interfaces rather than concrete implementations so each collaborator
// can be swapped for a fake in tests.
package schemas

import "context"

// Planner is the external planner boundary: action plan + snapshot in, plan or
// clarification out. The engine treats it as a stateless request/response call
// and never inspects its internals.
type Planner interface {
	BuildPlan(ctx context.Context, req PlanRequest) (*PlanResponse, error)
}

// FeedbackSink receives the PlanResult after each plan execution. Delivery
// failure must never affect control flow; implementations are expected to
// swallow their own errors or return them for logging only.
type FeedbackSink interface {
	Publish(ctx context.Context, result PlanResult) error
}

// Recorder appends snapshots and diffs to a session-scoped recording for
// offline analysis. It is observational only: the engine writes to it and
// never reads back.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap Snapshot) error
	RecordDiff(ctx context.Context, d Diff) error
	Close() error
}

// QuiescencePolicy decides when the page has settled enough after an action
// for the next read to be meaningful. The default implementation is a fixed
// delay; tests substitute an immediate one.
type QuiescencePolicy interface {
	Settle(ctx context.Context) error
}
