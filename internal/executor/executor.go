// internal/executor/executor.go
// Package executor translates plan steps into CDP primitives against a live
// page. It owns per-step timeouts, retry budgets, and handle-staleness checks;
// it knows nothing about replanning or plan provenance.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
	"github.com/axpilot/axpilot/internal/config"
)

var (
	// ErrMissingHandle marks a handle-requiring step that arrived without one.
	// Never retried: the step cannot succeed without a target.
	ErrMissingHandle = errors.New("step requires an element handle")

	// ErrStaleHandle marks a handle step whose plan predates the session's
	// current navigation epoch. Never retried: the handle references a
	// document that no longer exists.
	ErrStaleHandle = errors.New("element handle predates current navigation epoch")

	// ErrUnknownAction marks a step whose action the executor does not
	// implement.
	ErrUnknownAction = errors.New("unknown action type")
)

// Bridge is the narrow CDP surface the executor drives. The session provides
// the production implementation; tests substitute a mock so step semantics can
// be verified without a browser.
type Bridge interface {
	// ResolveHandle maps a backend node handle to a frontend node id usable
	// by DOM commands. Fails when the node left the tree.
	ResolveHandle(ctx context.Context, handle int64) (cdp.NodeID, error)

	// ScrollIntoView brings the node into the viewport before geometry reads.
	ScrollIntoView(ctx context.Context, nodeID cdp.NodeID) error

	// BoxModel retrieves the node's box model for click targeting.
	BoxModel(ctx context.Context, nodeID cdp.NodeID) (*dom.BoxModel, error)

	// Focus moves keyboard focus to the node.
	Focus(ctx context.Context, nodeID cdp.NodeID) error

	// DispatchMouse sends one raw mouse event.
	DispatchMouse(ctx context.Context, p *input.DispatchMouseEventParams) error

	// DispatchKey sends one raw key event.
	DispatchKey(ctx context.Context, p *input.DispatchKeyEventParams) error

	// InsertText types text into the focused element as a composition,
	// bypassing per-character key events.
	InsertText(ctx context.Context, text string) error

	// Viewport returns the CSS visual viewport dimensions.
	Viewport(ctx context.Context) (width, height float64, err error)

	// Navigate loads a URL and waits for the load to commit.
	Navigate(ctx context.Context, url string) error

	// NavigateBack moves one entry back in session history.
	NavigateBack(ctx context.Context) error

	// NavigateForward moves one entry forward in session history.
	NavigateForward(ctx context.Context) error

	// Reload reloads the current document.
	Reload(ctx context.Context) error

	// Sleep pauses for the duration, respecting the context.
	Sleep(ctx context.Context, d time.Duration) error
}

// EpochSource reports the session's current navigation epoch. The session
// increments it on every main-frame navigation.
type EpochSource interface {
	Epoch() uint64
}

// Executor executes individual plan steps.
type Executor struct {
	bridge Bridge
	epochs EpochSource
	cfg    config.EngineConfig
	logger *zap.Logger
}

// New returns an Executor bound to the given bridge and epoch source.
func New(bridge Bridge, epochs EpochSource, cfg config.EngineConfig, logger *zap.Logger) *Executor {
	return &Executor{
		bridge: bridge,
		epochs: epochs,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
}

// ExecuteStep runs one step to completion, honoring its timeout and retry
// budget. planEpoch is the navigation epoch the owning plan was built against;
// handle steps are rejected with ErrStaleHandle once the session has moved
// past it.
func (e *Executor) ExecuteStep(ctx context.Context, step schemas.Step, planEpoch uint64) error {
	if step.Action.RequiresHandle() {
		if step.Handle == 0 {
			return fmt.Errorf("step %s (%s): %w", step.StepID, step.Action, ErrMissingHandle)
		}
		if current := e.epochs.Epoch(); current != planEpoch {
			return fmt.Errorf("step %s (%s): plan epoch %d, session epoch %d: %w",
				step.StepID, step.Action, planEpoch, current, ErrStaleHandle)
		}
	}

	timeout := e.stepTimeout(step)
	attempts := step.Retries + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		err = e.dispatch(opCtx, step)
		cancel()

		if err == nil {
			return nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt < attempts {
			e.logger.Debug("Step attempt failed; retrying.",
				zap.String("step_id", step.StepID),
				zap.String("action", string(step.Action)),
				zap.Int("attempt", attempt),
				zap.Error(err))
			// Backoff doubles per attempt, starting at 50ms.
			backoff := 50 * time.Millisecond << (attempt - 1)
			if sleepErr := e.bridge.Sleep(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return fmt.Errorf("step %s (%s) failed after %d attempts: %w",
		step.StepID, step.Action, attempts, err)
}

// stepTimeout prefers the planner-supplied timeout and falls back to the
// configured per-action default.
func (e *Executor) stepTimeout(step schemas.Step) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	return e.cfg.StepTimeout(string(step.Action))
}

// retryable reports whether a step error may succeed on a fresh attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrMissingHandle) ||
		errors.Is(err, ErrStaleHandle) ||
		errors.Is(err, ErrUnknownAction) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (e *Executor) dispatch(ctx context.Context, step schemas.Step) error {
	switch step.Action {
	case schemas.ActionClick:
		return e.click(ctx, step)
	case schemas.ActionFocus:
		nodeID, err := e.bridge.ResolveHandle(ctx, step.Handle)
		if err != nil {
			return fmt.Errorf("resolving handle %d: %w", step.Handle, err)
		}
		return e.bridge.Focus(ctx, nodeID)
	case schemas.ActionInput:
		return e.typeInto(ctx, step)
	case schemas.ActionInputSelect:
		return e.typeAndSelect(ctx, step)
	case schemas.ActionScroll:
		return e.scroll(ctx, step)
	case schemas.ActionNavigate:
		if strings.TrimSpace(step.Value) == "" {
			return fmt.Errorf("step %s: navigate requires a url", step.StepID)
		}
		return e.bridge.Navigate(ctx, step.Value)
	case schemas.ActionHistoryBack:
		return e.bridge.NavigateBack(ctx)
	case schemas.ActionHistoryForward:
		return e.bridge.NavigateForward(ctx)
	case schemas.ActionReload:
		return e.bridge.Reload(ctx)
	default:
		return fmt.Errorf("step %s: %q: %w", step.StepID, step.Action, ErrUnknownAction)
	}
}

// click scrolls the target into view, reads its box model, and dispatches a
// move/press/release sequence at the content quad's center.
func (e *Executor) click(ctx context.Context, step schemas.Step) error {
	nodeID, err := e.bridge.ResolveHandle(ctx, step.Handle)
	if err != nil {
		return fmt.Errorf("resolving handle %d: %w", step.Handle, err)
	}
	if err := e.bridge.ScrollIntoView(ctx, nodeID); err != nil {
		return fmt.Errorf("scrolling node %d into view: %w", nodeID, err)
	}
	// Let scroll-linked layout settle before the geometry read.
	if err := e.bridge.Sleep(ctx, 50*time.Millisecond); err != nil {
		return err
	}

	box, err := e.bridge.BoxModel(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("reading box model for node %d: %w", nodeID, err)
	}
	if box == nil || len(box.Content) < 8 || box.Width <= 0 || box.Height <= 0 {
		return fmt.Errorf("node %d has no geometric representation", nodeID)
	}
	x, y := quadCenter(box.Content)

	if err := e.bridge.DispatchMouse(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y)); err != nil {
		return fmt.Errorf("moving to (%0.f, %0.f): %w", x, y, err)
	}
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	if err := e.bridge.DispatchMouse(ctx, press); err != nil {
		return fmt.Errorf("pressing at (%0.f, %0.f): %w", x, y, err)
	}
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	if err := e.bridge.DispatchMouse(ctx, release); err != nil {
		return fmt.Errorf("releasing at (%0.f, %0.f): %w", x, y, err)
	}
	return nil
}

// typeInto focuses the target, clears any existing value with select-all plus
// backspace, and inserts the step value as one text composition.
func (e *Executor) typeInto(ctx context.Context, step schemas.Step) error {
	nodeID, err := e.bridge.ResolveHandle(ctx, step.Handle)
	if err != nil {
		return fmt.Errorf("resolving handle %d: %w", step.Handle, err)
	}
	if err := e.bridge.Focus(ctx, nodeID); err != nil {
		return fmt.Errorf("focusing node %d: %w", nodeID, err)
	}
	if err := e.keyChord(ctx, "a", input.ModifierCtrl); err != nil {
		return fmt.Errorf("selecting existing value: %w", err)
	}
	if err := e.keyChord(ctx, "Backspace", 0); err != nil {
		return fmt.Errorf("clearing existing value: %w", err)
	}
	if err := e.bridge.InsertText(ctx, step.Value); err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}
	return nil
}

// typeAndSelect types into an autocomplete field, waits for the suggestion
// list to populate, then commits the first suggestion with arrow-down plus
// enter.
func (e *Executor) typeAndSelect(ctx context.Context, step schemas.Step) error {
	if err := e.typeInto(ctx, step); err != nil {
		return err
	}
	if err := e.bridge.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return err
	}
	if err := e.keyChord(ctx, "ArrowDown", 0); err != nil {
		return fmt.Errorf("highlighting suggestion: %w", err)
	}
	if err := e.keyChord(ctx, "Enter", 0); err != nil {
		return fmt.Errorf("committing suggestion: %w", err)
	}
	return nil
}

// keyChord dispatches a keyDown/keyUp pair for one key with optional
// modifiers.
func (e *Executor) keyChord(ctx context.Context, key string, mods input.Modifier) error {
	down := input.DispatchKeyEvent(input.KeyDown).WithKey(key)
	up := input.DispatchKeyEvent(input.KeyUp).WithKey(key)
	if mods != 0 {
		down = down.WithModifiers(mods)
		up = up.WithModifiers(mods)
	}
	if err := e.bridge.DispatchKey(ctx, down); err != nil {
		return err
	}
	return e.bridge.DispatchKey(ctx, up)
}

// quadCenter returns the centroid of a four-vertex content quad.
func quadCenter(quad dom.Quad) (x, y float64) {
	x = (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	y = (quad[1] + quad[3] + quad[5] + quad[7]) / 4
	return x, y
}
