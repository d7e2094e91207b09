// internal/planner/async.go
package planner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/axpilot/axpilot/api/schemas"
)

const asyncPublishTimeout = 10 * time.Second

// AsyncSink decouples feedback publishing from the plan loop. Publish hands
// the result to a bounded worker group and returns immediately; a slow or
// unreachable sink never stalls step execution. Errors from the wrapped sink
// are logged, not propagated. Close drains in-flight publishes.
type AsyncSink struct {
	inner  schemas.FeedbackSink
	group  *errgroup.Group
	logger *zap.Logger
}

var _ schemas.FeedbackSink = (*AsyncSink)(nil)

// NewAsyncSink wraps a sink with at most limit concurrent publishes.
func NewAsyncSink(inner schemas.FeedbackSink, limit int, logger *zap.Logger) *AsyncSink {
	g := new(errgroup.Group)
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	return &AsyncSink{
		inner:  inner,
		group:  g,
		logger: logger.Named("feedback.async"),
	}
}

// Publish enqueues the result. It blocks only when every worker slot is busy.
// The publish runs on its own deadline so a cancelled run still delivers its
// final result.
func (s *AsyncSink) Publish(ctx context.Context, result schemas.PlanResult) error {
	s.group.Go(func() error {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncPublishTimeout)
		defer cancel()
		if err := s.inner.Publish(pubCtx, result); err != nil {
			s.logger.Warn("Failed to publish plan result.",
				zap.String("trace_id", result.TraceID), zap.Error(err))
		}
		return nil
	})
	return nil
}

// Close waits for in-flight publishes to finish.
func (s *AsyncSink) Close() error {
	return s.group.Wait()
}
