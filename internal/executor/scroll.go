// internal/executor/scroll.go
package executor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"

	"github.com/axpilot/axpilot/api/schemas"
)

const (
	// scrollTicks is the number of wheel events one scroll step is split into.
	scrollTicks = 8
	// scrollTickPause separates consecutive wheel events.
	scrollTickPause = 40 * time.Millisecond
	// scrollViewportFraction is the fraction of the viewport height covered by
	// one scroll step, leaving overlap so content is never skipped entirely.
	scrollViewportFraction = 0.8
)

// scroll dispatches a burst of wheel events at the viewport center, with the
// per-tick delta eased in and out so the page's scroll handlers see a
// plausible gesture rather than one synthetic jump. Direction comes from the
// step value; an empty value scrolls down. Absolute top/bottom targets use a
// Home/End key chord instead, since no fixed wheel burst reaches the end of an
// arbitrarily long page.
func (e *Executor) scroll(ctx context.Context, step schemas.Step) error {
	width, height, err := e.bridge.Viewport(ctx)
	if err != nil || width <= 0 || height <= 0 {
		// Fall back to a common desktop viewport when metrics are unavailable.
		width, height = 1280, 800
	}
	centerX, centerY := width/2, height/2

	total := height * scrollViewportFraction
	switch strings.ToLower(strings.TrimSpace(step.Value)) {
	case "", "down":
	case "up":
		total = -total
	case "bottom":
		return e.keyChord(ctx, "End", 0)
	case "top":
		return e.keyChord(ctx, "Home", 0)
	default:
		return fmt.Errorf("step %s: unknown scroll direction %q", step.StepID, step.Value)
	}

	prev := 0.0
	for tick := 1; tick <= scrollTicks; tick++ {
		eased := total * easeInOut(float64(tick)/scrollTicks)
		delta := eased - prev
		prev = eased

		ev := input.DispatchMouseEvent(input.MouseWheel, centerX, centerY).
			WithDeltaX(0).
			WithDeltaY(delta)
		if err := e.bridge.DispatchMouse(ctx, ev); err != nil {
			return fmt.Errorf("dispatching wheel tick %d: %w", tick, err)
		}
		if tick < scrollTicks {
			if err := e.bridge.Sleep(ctx, scrollTickPause); err != nil {
				return err
			}
		}
	}
	return nil
}

// easeInOut is a cosine ease over t in [0,1].
func easeInOut(t float64) float64 {
	return (1 - math.Cos(math.Pi*t)) / 2
}
