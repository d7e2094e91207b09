// internal/engine/watcher.go
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
)

// PlanRunner is the slice of the engine the watcher needs to restart a run.
type PlanRunner interface {
	Run(ctx context.Context, intent schemas.ActionPlan) (Outcome, error)
}

// Watcher resumes interrupted intents after a navigation completes. The
// session invokes HandlePageLoad on every main-frame load event, after it has
// bumped the navigation epoch and reset the snapshot lineage, so the resumed
// run starts from a brand-new capture and can never reuse a pre-navigation
// handle.
type Watcher struct {
	sessionID   string
	pending     *PendingStore
	runner      PlanRunner
	resumeDelay time.Duration
	logger      *zap.Logger
	active      atomic.Int64
}

// NewWatcher returns a Watcher for one session.
func NewWatcher(sessionID string, pending *PendingStore, runner PlanRunner, resumeDelay time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		sessionID:   sessionID,
		pending:     pending,
		runner:      runner,
		resumeDelay: resumeDelay,
		logger:      logger.Named("watcher").With(zap.String("session_id", sessionID)),
	}
}

// HandlePageLoad claims the pending intent for the session, if any, waits for
// the new document to settle, and restarts the plan loop with the original
// intent. A load with nothing pending is a no-op. The claim happens before
// the delay so a second load event cannot resume the same intent twice.
func (w *Watcher) HandlePageLoad(ctx context.Context) {
	w.active.Add(1)
	defer w.active.Add(-1)
	entry, ok := w.pending.Claim(w.sessionID)
	if !ok {
		return
	}
	w.logger.Info("Resuming intent after navigation.",
		zap.String("trace_id", entry.TraceID),
		zap.Duration("saved_ago", time.Since(entry.SavedAt)))

	if w.resumeDelay > 0 {
		timer := time.NewTimer(w.resumeDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}

	outcome, err := w.runner.Run(ctx, entry.Intent)
	if err != nil {
		w.logger.Error("Resumed run failed.",
			zap.String("trace_id", entry.TraceID), zap.Error(err))
		return
	}
	w.logger.Info("Resumed run finished.",
		zap.String("trace_id", entry.TraceID),
		zap.Stringer("state", outcome.State))
}

// Active reports whether a resumed run is currently in flight.
func (w *Watcher) Active() bool {
	return w.active.Load() > 0
}
