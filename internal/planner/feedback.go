// internal/planner/feedback.go
package planner

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
	"github.com/axpilot/axpilot/internal/config"
)

// FeedbackClient posts plan results to the telemetry sink. Publishing is
// fire-and-forget from the engine's point of view: the engine logs a returned
// error and moves on, so this client never blocks or fails a run.
type FeedbackClient struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

var _ schemas.FeedbackSink = (*FeedbackClient)(nil)

// NewFeedbackClient builds a feedback client. An empty endpoint yields a
// client that drops every result.
func NewFeedbackClient(cfg config.FeedbackConfig, logger *zap.Logger) *FeedbackClient {
	return &FeedbackClient{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger.Named("feedback"),
	}
}

// Publish posts one plan result.
func (c *FeedbackClient) Publish(ctx context.Context, result schemas.PlanResult) error {
	if c.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding plan result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting plan result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("feedback sink returned %d", resp.StatusCode)
	}
	c.logger.Debug("Published plan result.",
		zap.String("trace_id", result.TraceID),
		zap.String("status", string(result.Status)))
	return nil
}
