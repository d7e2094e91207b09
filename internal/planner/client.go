// internal/planner/client.go
// Package planner holds the HTTP clients for the two external boundaries: the
// planning service that turns intent plus snapshot into executable steps, and
// the feedback sink that receives execution results.
package planner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/axpilot/axpilot/api/schemas"
	"github.com/axpilot/axpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client calls the external planner over HTTP. It enforces a client-side rate
// limit so replanning storms cannot hammer the service.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

var _ schemas.Planner = (*Client)(nil)

// NewClient builds a planner client from configuration.
func NewClient(cfg config.PlannerConfig, logger *zap.Logger) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.Named("planner"),
	}
}

// BuildPlan posts the request and decodes the plan-or-clarification response.
func (c *Client) BuildPlan(ctx context.Context, req schemas.PlanRequest) (*schemas.PlanResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("planner rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building plan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Requesting plan.",
		zap.String("trace_id", req.TraceID),
		zap.String("phase", req.Phase),
		zap.Int("snapshot_elements", len(req.Snapshot.Elements)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling planner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded amount of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("planner returned %d: %s", resp.StatusCode, string(snippet))
	}

	var planResp schemas.PlanResponse
	if err := json.NewDecoder(resp.Body).Decode(&planResp); err != nil {
		return nil, fmt.Errorf("decoding plan response: %w", err)
	}
	if planResp.Plan == nil && planResp.Clarification == nil {
		return nil, fmt.Errorf("planner returned neither a plan nor a clarification")
	}
	return &planResp, nil
}
