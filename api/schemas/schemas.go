// api/schemas/schemas.go
// Shared data transfer objects for the execution engine and its external
// collaborators (interpreter, planner, feedback sink, recorder). Every message
// that crosses a boundary carries a schema version and an id/trace_id pair so
// it can be correlated with its originating run.
package schemas

import "time"

// Schema version tags for cross-boundary messages.
const (
	SchemaActionPlan    = "actionplan_v1"
	SchemaSnapshot      = "snapshot_v1"
	SchemaDiff          = "diff_v1"
	SchemaPlanRequest   = "planrequest_v1"
	SchemaPlan          = "executionplan_v1"
	SchemaPlanResult    = "executionresult_v1"
	SchemaClarification = "clarification_v1"
)

// PhasePostInteraction is the phase hint attached to a follow-up plan request
// after an interactive step caused a relevant tree change.
const PhasePostInteraction = "post_interaction"

// ActionType enumerates the primitive step actions the executor understands.
type ActionType string

const (
	ActionClick          ActionType = "click"
	ActionInput          ActionType = "input"
	ActionInputSelect    ActionType = "input_select"
	ActionScroll         ActionType = "scroll"
	ActionNavigate       ActionType = "navigate"
	ActionHistoryBack    ActionType = "history_back"
	ActionHistoryForward ActionType = "history_forward"
	ActionReload         ActionType = "reload"
	ActionFocus          ActionType = "focus"
)

// RequiresHandle reports whether a step with this action must reference a
// concrete element handle to be executable.
func (a ActionType) RequiresHandle() bool {
	switch a {
	case ActionClick, ActionInput, ActionInputSelect, ActionFocus:
		return true
	}
	return false
}

// IsNavigation reports whether the action replaces the page outright,
// invalidating every element handle captured before it.
func (a ActionType) IsNavigation() bool {
	switch a {
	case ActionNavigate, ActionHistoryBack, ActionHistoryForward, ActionReload:
		return true
	}
	return false
}

// Element is the projection of one interactive accessibility node.
//
// LocalID is stable within a snapshot lineage: the same underlying node keeps
// the same LocalID across successive captures on the same page. Handle is the
// opaque protocol reference (a backend DOM node id) and is only valid until
// the next navigation on the owning session.
type Element struct {
	LocalID     string `json:"local_id"`
	Handle      int64  `json:"handle,omitempty"`
	Role        string `json:"role"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value,omitempty"`
	Focusable   bool   `json:"focusable,omitempty"`
	Focused     bool   `json:"focused,omitempty"`
	Expanded    bool   `json:"expanded,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
	Checked     bool   `json:"checked,omitempty"`
	Selected    bool   `json:"selected,omitempty"`
}

// Snapshot is a point-in-time projection of a page's interactive elements.
// It is append-only: once built it is never mutated.
type Snapshot struct {
	SchemaVersion string    `json:"schema_version"`
	ID            string    `json:"id"`
	TraceID       string    `json:"trace_id"`
	PageURL       string    `json:"page_url,omitempty"`
	GeneratedAt   int64     `json:"generated_at"`
	Epoch         uint64    `json:"epoch"`
	Elements      []Element `json:"elements"`
}

// Change pairs the before/after projections of an element whose signature
// differs between two snapshots.
type Change struct {
	Before Element `json:"before"`
	After  Element `json:"after"`
}

// DiffCounts summarizes a diff for the relevance heuristics and telemetry.
type DiffCounts struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// Diff is the added/removed/changed delta between two snapshots of the same
// trace.
type Diff struct {
	SchemaVersion string     `json:"schema_version"`
	TraceID       string     `json:"trace_id"`
	Added         []Element  `json:"added"`
	Removed       []Element  `json:"removed"`
	Changed       []Change   `json:"changed"`
	Counts        DiffCounts `json:"counts"`
}

// ActionPlan is the high-level intent produced by the external interpreter.
// The engine never derives it; it only consumes it.
type ActionPlan struct {
	SchemaVersion string         `json:"schema_version"`
	ID            string         `json:"id"`
	TraceID       string         `json:"trace_id,omitempty"`
	Action        string         `json:"action"`
	Target        string         `json:"target,omitempty"`
	Value         string         `json:"value,omitempty"`
	Entities      map[string]any `json:"entities,omitempty"`
	Confidence    float64        `json:"confidence,omitempty"`
}

// Step is one executable unit of a plan.
type Step struct {
	StepID    string     `json:"step_id"`
	Action    ActionType `json:"action_type"`
	Handle    int64      `json:"handle,omitempty"`
	Value     string     `json:"value,omitempty"`
	TimeoutMs int        `json:"timeout_ms,omitempty"`
	Retries   int        `json:"retries,omitempty"`
}

// Plan is an ordered list of steps returned by the external planner. Epoch is
// the navigation epoch of the snapshot the plan was built against; the
// executor refuses handle steps once the session has moved past it. A plan is
// consumed once and discarded, never cached across replanning rounds.
type Plan struct {
	SchemaVersion string   `json:"schema_version"`
	ID            string   `json:"id"`
	TraceID       string   `json:"trace_id,omitempty"`
	Epoch         uint64   `json:"epoch,omitempty"`
	Phase         string   `json:"phase,omitempty"`
	Steps         []Step   `json:"steps"`
	FocusIDs      []string `json:"focus_ids,omitempty"`
}

// StepStatus is the terminal status of one executed step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// StepResult records the outcome of one step.
type StepResult struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// PlanStatus is the aggregate status of a plan execution.
type PlanStatus string

const (
	// PlanSuccess means every step completed without error.
	PlanSuccess PlanStatus = "success"
	// PlanPartial means at least one step recorded an error; the remaining
	// steps were still attempted.
	PlanPartial PlanStatus = "partial"
)

// PlanResult aggregates the per-step outcomes of one plan execution. It is
// emitted to the feedback boundary after every round.
type PlanResult struct {
	SchemaVersion string       `json:"schema_version"`
	ID            string       `json:"id"`
	TraceID       string       `json:"trace_id,omitempty"`
	Status        PlanStatus   `json:"status"`
	StepResults   []StepResult `json:"step_results"`
	Errors        []string     `json:"errors,omitempty"`
}

// ClarificationOption is one choice offered back to the user when the planner
// cannot commit to a plan.
type ClarificationOption struct {
	Label               string   `json:"label"`
	CandidateElementIDs []string `json:"candidate_element_ids,omitempty"`
}

// ClarificationRequest halts the loop; it is surfaced verbatim and never
// retried automatically.
type ClarificationRequest struct {
	SchemaVersion string                `json:"schema_version"`
	ID            string                `json:"id"`
	TraceID       string                `json:"trace_id,omitempty"`
	Question      string                `json:"question"`
	Reason        string                `json:"reason,omitempty"`
	Options       []ClarificationOption `json:"options,omitempty"`
}

// PlanRequest is the request shape of the planner boundary.
type PlanRequest struct {
	SchemaVersion string     `json:"schema_version"`
	ID            string     `json:"id"`
	TraceID       string     `json:"trace_id,omitempty"`
	ActionPlan    ActionPlan `json:"action_plan"`
	Snapshot      Snapshot   `json:"snapshot"`
	Phase         string     `json:"phase,omitempty"`
	FocusIDs      []string   `json:"focus_ids,omitempty"`
}

// PlanResponse is the response shape of the planner boundary: exactly one of
// Plan or Clarification is set.
type PlanResponse struct {
	Plan          *Plan                 `json:"plan,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
}

// PendingIntent is the high-level goal persisted across a navigation
// boundary. It is keyed by page-session identity and deleted exactly once:
// either when resumed or when superseded by a new run on the same session.
type PendingIntent struct {
	TraceID string     `json:"trace_id"`
	Intent  ActionPlan `json:"original_intent"`
	SavedAt time.Time  `json:"saved_at"`
}
