// internal/planner/client_test.go
package planner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axpilot/axpilot/api/schemas"
	"github.com/axpilot/axpilot/internal/config"
)

func testPlannerConfig(endpoint string) config.PlannerConfig {
	return config.PlannerConfig{
		Endpoint:       endpoint,
		RequestTimeout: 2 * time.Second,
		RateLimit:      100,
		RateBurst:      10,
	}
}

func TestBuildPlanDecodesPlan(t *testing.T) {
	var gotBody schemas.PlanRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := schemas.PlanResponse{Plan: &schemas.Plan{
			SchemaVersion: schemas.SchemaPlan,
			ID:            "plan-1",
			TraceID:       gotBody.TraceID,
			Steps:         []schemas.Step{{StepID: "s1", Action: schemas.ActionClick, Handle: 17}},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient(testPlannerConfig(srv.URL), zaptest.NewLogger(t))

	resp, err := c.BuildPlan(context.Background(), schemas.PlanRequest{
		SchemaVersion: schemas.SchemaPlanRequest,
		ID:            "req-1",
		TraceID:       "trace-1",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Nil(t, resp.Clarification)
	assert.Equal(t, "plan-1", resp.Plan.ID)
	assert.Equal(t, "trace-1", gotBody.TraceID)
}

func TestBuildPlanDecodesClarification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := schemas.PlanResponse{Clarification: &schemas.ClarificationRequest{
			SchemaVersion: schemas.SchemaClarification,
			ID:            "clar-1",
			Question:      "Which search button did you mean?",
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient(testPlannerConfig(srv.URL), zaptest.NewLogger(t))

	resp, err := c.BuildPlan(context.Background(), schemas.PlanRequest{TraceID: "trace-1"})
	require.NoError(t, err)
	assert.Nil(t, resp.Plan)
	require.NotNil(t, resp.Clarification)
	assert.Equal(t, "Which search button did you mean?", resp.Clarification.Question)
}

func TestBuildPlanRejectsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(testPlannerConfig(srv.URL), zaptest.NewLogger(t))

	_, err := c.BuildPlan(context.Background(), schemas.PlanRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a plan nor a clarification")
}

func TestBuildPlanSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testPlannerConfig(srv.URL), zaptest.NewLogger(t))

	_, err := c.BuildPlan(context.Background(), schemas.PlanRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestBuildPlanHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(testPlannerConfig(srv.URL), zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.BuildPlan(ctx, schemas.PlanRequest{})
	require.Error(t, err)
}

func TestFeedbackPublish(t *testing.T) {
	var got schemas.PlanResult
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewFeedbackClient(config.FeedbackConfig{
		Endpoint:       srv.URL,
		RequestTimeout: time.Second,
	}, zaptest.NewLogger(t))

	err := c.Publish(context.Background(), schemas.PlanResult{
		SchemaVersion: schemas.SchemaPlanResult,
		TraceID:       "trace-1",
		Status:        schemas.PlanSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, "trace-1", got.TraceID)
}

func TestFeedbackDisabledEndpointIsNoop(t *testing.T) {
	c := NewFeedbackClient(config.FeedbackConfig{}, zaptest.NewLogger(t))
	assert.NoError(t, c.Publish(context.Background(), schemas.PlanResult{}))
}

func TestFeedbackSurfacesSinkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewFeedbackClient(config.FeedbackConfig{
		Endpoint:       srv.URL,
		RequestTimeout: time.Second,
	}, zaptest.NewLogger(t))

	assert.Error(t, c.Publish(context.Background(), schemas.PlanResult{}))
}
