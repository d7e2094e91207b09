// internal/engine/engine.go
// Package engine owns the plan loop: capture the page, request a plan,
// execute it step by step, diff the tree after interactive steps, and decide
// between continuing, replanning, and handing off across a navigation.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
	"github.com/axpilot/axpilot/internal/axtree"
	"github.com/axpilot/axpilot/internal/config"
)

// Capturer reads the page into snapshots. *axtree.Capturer is the production
// implementation.
type Capturer interface {
	Capture(ctx context.Context, traceID string, epoch uint64) schemas.Snapshot
}

// Differ computes snapshot deltas and classifies their relevance.
// *axtree.DiffEngine is the production implementation.
type Differ interface {
	Diff(old, new schemas.Snapshot) schemas.Diff
	ShouldReplan(diff schemas.Diff, trigger schemas.Step) bool
}

// StepRunner executes one plan step. *executor.Executor is the production
// implementation.
type StepRunner interface {
	ExecuteStep(ctx context.Context, step schemas.Step, planEpoch uint64) error
}

// SessionInfo exposes the owning session's identity and navigation epoch.
type SessionInfo interface {
	ID() string
	Epoch() uint64
}

// FastMatcher resolves trivial utterances into single-step plans.
type FastMatcher interface {
	Match(utterance, traceID string, epoch uint64) (*schemas.Plan, bool)
}

// Deps collects the engine's collaborators.
type Deps struct {
	Session  SessionInfo
	Capturer Capturer
	Differ   Differ
	Executor StepRunner
	Matcher  FastMatcher
	Planner  schemas.Planner
	Feedback schemas.FeedbackSink
	Recorder schemas.Recorder
	Pending  *PendingStore
	Quiesce  schemas.QuiescencePolicy
}

// Engine drives one session's plan loop. An Engine is not safe for concurrent
// runs; the session serializes access.
type Engine struct {
	deps   Deps
	cfg    config.EngineConfig
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New builds an Engine. A nil Quiesce falls back to the configured fixed
// settle delay; nil Feedback and Recorder become no-ops at the call sites.
func New(deps Deps, cfg config.EngineConfig, logger *zap.Logger) *Engine {
	if deps.Quiesce == nil {
		deps.Quiesce = NewFixedSettle(cfg.SettleDelay)
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("engine").With(zap.String("session_id", deps.Session.ID())),
		state:  StateIdle,
	}
}

// State returns the loop's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		e.logger.Debug("State transition.",
			zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// TryFastPath attempts to resolve the utterance as a trivial command and
// execute it immediately, bypassing capture and the planner. It reports
// whether the utterance was handled.
func (e *Engine) TryFastPath(ctx context.Context, utterance string) (bool, error) {
	plan, ok := e.deps.Matcher.Match(utterance, uuid.NewString(), e.deps.Session.Epoch())
	if !ok {
		return false, nil
	}

	e.setState(StateExecuting)
	defer e.setState(StateDone)

	results, errs := e.executeSteps(ctx, plan.Steps, plan.Epoch)
	result := buildResult(plan.TraceID, results, errs)
	e.publish(ctx, result)

	if len(errs) > 0 {
		return true, fmt.Errorf("fast path %q: %s", utterance, errs[0])
	}
	return true, nil
}

// Run executes one intent to a terminal state. Step-level failures are
// retried with fresh plans up to the outer budget; relevant tree changes
// trigger at most the inner budget of replans; a clarification halts the run
// immediately. The returned error is non-nil only for hard failures where no
// plan could be executed at all.
func (e *Engine) Run(ctx context.Context, intent schemas.ActionPlan) (Outcome, error) {
	if intent.TraceID == "" {
		intent.TraceID = uuid.NewString()
	}
	logger := e.logger.With(zap.String("trace_id", intent.TraceID))

	// A new run supersedes whatever an earlier navigation left behind.
	e.deps.Pending.Discard(e.deps.Session.ID())

	outerLeft := e.cfg.OuterRetryBudget
	innerLeft := e.cfg.InnerReplanBudget

	phase := ""
	var focusIDs []string
	var triggerHandle int64
	var lastErr error

	for {
		e.setState(StatePlanning)
		epoch := e.deps.Session.Epoch()
		snap := e.deps.Capturer.Capture(ctx, intent.TraceID, epoch)
		e.record(ctx, snap)

		resp, err := e.deps.Planner.BuildPlan(ctx, schemas.PlanRequest{
			SchemaVersion: schemas.SchemaPlanRequest,
			ID:            uuid.NewString(),
			TraceID:       intent.TraceID,
			ActionPlan:    intent,
			Snapshot:      snap,
			Phase:         phase,
			FocusIDs:      focusIDs,
		})
		if err != nil {
			lastErr = err
			outerLeft--
			if outerLeft <= 0 || ctx.Err() != nil {
				e.setState(StateFailed)
				return Outcome{State: StateFailed},
					fmt.Errorf("%w: %s", ErrBudgetExhausted, lastErr)
			}
			logger.Warn("Planner request failed; retrying.",
				zap.Int("retries_left", outerLeft), zap.Error(err))
			if err := e.deps.Quiesce.Settle(ctx); err != nil {
				e.setState(StateFailed)
				return Outcome{State: StateFailed}, err
			}
			continue
		}

		if resp.Clarification != nil {
			logger.Info("Planner requested clarification; halting.",
				zap.String("question", resp.Clarification.Question))
			e.setState(StateClarify)
			return Outcome{State: StateClarify, Clarification: resp.Clarification}, nil
		}

		plan := resp.Plan
		if plan.Epoch == 0 {
			plan.Epoch = epoch
		}
		steps := plan.Steps
		if phase == schemas.PhasePostInteraction {
			steps = filterPostInteraction(steps, triggerHandle, snap, e.cfg.ConfirmKeywords)
		}
		phase, focusIDs, triggerHandle = "", nil, 0

		e.setState(StateExecuting)
		round := e.executeRound(ctx, logger, intent, steps, plan.Epoch, snap, &innerLeft)

		result := buildResult(intent.TraceID, round.results, round.errs)
		e.publish(ctx, result)

		if round.interrupted {
			phase = schemas.PhasePostInteraction
			focusIDs = round.focusIDs
			triggerHandle = round.triggerHandle
			logger.Info("Relevant tree change; replanning.",
				zap.Int("focus_ids", len(focusIDs)),
				zap.Int("replans_left", innerLeft))
			continue
		}

		if len(round.errs) > 0 && !round.navigated {
			outerLeft--
			if outerLeft > 0 && ctx.Err() == nil {
				logger.Warn("Plan finished with step errors; retrying with a fresh plan.",
					zap.Strings("errors", round.errs),
					zap.Int("retries_left", outerLeft))
				if err := e.deps.Quiesce.Settle(ctx); err != nil {
					e.setState(StateFailed)
					return Outcome{State: StateFailed, Result: &result}, err
				}
				continue
			}
		}

		e.setState(StateDone)
		return Outcome{State: StateDone, Result: &result}, nil
	}
}

// roundOutcome carries one execution round's results back to the loop.
type roundOutcome struct {
	results       []schemas.StepResult
	errs          []string
	interrupted   bool
	navigated     bool
	focusIDs      []string
	triggerHandle int64
}

// executeRound runs the steps of one plan. A successful navigating step ends
// the round (the watcher resumes the remainder through the pending store); a
// relevant post-interaction diff ends it with interrupted set.
func (e *Engine) executeRound(ctx context.Context, logger *zap.Logger, intent schemas.ActionPlan, steps []schemas.Step, planEpoch uint64, baseline schemas.Snapshot, innerLeft *int) roundOutcome {
	var out roundOutcome

	for i, step := range steps {
		if ctx.Err() != nil {
			break
		}

		// A navigating step that leaves unexecuted steps behind hands the
		// rest of the intent to the watcher before the page goes away.
		if step.Action.IsNavigation() && i < len(steps)-1 {
			e.deps.Pending.Save(e.deps.Session.ID(), intent)
		}

		start := time.Now()
		err := e.deps.Executor.ExecuteStep(ctx, step, planEpoch)
		res := schemas.StepResult{
			StepID:     step.StepID,
			Status:     schemas.StepSuccess,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			res.Status = schemas.StepError
			res.Error = err.Error()
			out.errs = append(out.errs, err.Error())
			logger.Warn("Step failed; continuing with remaining steps.",
				zap.String("step_id", step.StepID),
				zap.String("action", string(step.Action)),
				zap.Error(err))
			// A failed navigation never fires the load event; the hand-off
			// entry saved above must not wait for one.
			if step.Action.IsNavigation() {
				e.deps.Pending.Discard(e.deps.Session.ID())
			}
		}
		out.results = append(out.results, res)

		if err == nil && step.Action.IsNavigation() {
			out.navigated = true
			return out
		}

		if err != nil {
			continue
		}

		e.setState(StateDiffing)
		if err := e.deps.Quiesce.Settle(ctx); err != nil {
			break
		}
		post := e.deps.Capturer.Capture(ctx, intent.TraceID, e.deps.Session.Epoch())
		e.record(ctx, post)
		e.setState(StateExecuting)

		// Only click and focus can reveal new UI worth interrupting for,
		// even on a plan's final step. Other actions still advance the
		// baseline so their churn is not charged to the next click's diff.
		if step.Action == schemas.ActionClick || step.Action == schemas.ActionFocus {
			diff := e.deps.Differ.Diff(baseline, post)
			e.recordDiff(ctx, diff)

			if e.deps.Differ.ShouldReplan(diff, step) && *innerLeft > 0 {
				*innerLeft--
				out.interrupted = true
				out.focusIDs = axtree.FocusIDs(diff)
				out.triggerHandle = step.Handle
				return out
			}
		}
		baseline = post
	}
	return out
}

// executeSteps is the degenerate round used by the fast path: no diffing, no
// pending hand-off.
func (e *Engine) executeSteps(ctx context.Context, steps []schemas.Step, planEpoch uint64) ([]schemas.StepResult, []string) {
	var results []schemas.StepResult
	var errs []string
	for _, step := range steps {
		start := time.Now()
		err := e.deps.Executor.ExecuteStep(ctx, step, planEpoch)
		res := schemas.StepResult{
			StepID:     step.StepID,
			Status:     schemas.StepSuccess,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			res.Status = schemas.StepError
			res.Error = err.Error()
			errs = append(errs, err.Error())
		}
		results = append(results, res)
	}
	return results, errs
}

func buildResult(traceID string, results []schemas.StepResult, errs []string) schemas.PlanResult {
	status := schemas.PlanSuccess
	if len(errs) > 0 {
		status = schemas.PlanPartial
	}
	return schemas.PlanResult{
		SchemaVersion: schemas.SchemaPlanResult,
		ID:            uuid.NewString(),
		TraceID:       traceID,
		Status:        status,
		StepResults:   results,
		Errors:        errs,
	}
}

// publish delivers the result to the feedback sink; failure is logged only.
func (e *Engine) publish(ctx context.Context, result schemas.PlanResult) {
	if e.deps.Feedback == nil {
		return
	}
	if err := e.deps.Feedback.Publish(ctx, result); err != nil {
		e.logger.Warn("Feedback publish failed.",
			zap.String("trace_id", result.TraceID), zap.Error(err))
	}
}

// record appends a snapshot to the recording; failure is logged only.
func (e *Engine) record(ctx context.Context, snap schemas.Snapshot) {
	if e.deps.Recorder == nil {
		return
	}
	if err := e.deps.Recorder.RecordSnapshot(ctx, snap); err != nil {
		e.logger.Warn("Snapshot recording failed.", zap.Error(err))
	}
}

func (e *Engine) recordDiff(ctx context.Context, diff schemas.Diff) {
	if e.deps.Recorder == nil {
		return
	}
	if err := e.deps.Recorder.RecordDiff(ctx, diff); err != nil {
		e.logger.Warn("Diff recording failed.", zap.Error(err))
	}
}
