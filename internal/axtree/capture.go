// internal/axtree/capture.go
package axtree

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
)

// Runner executes CDP actions against the attached page. The session
// implements it; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// interactiveRoles is the fixed allowlist of accessibility roles that make it
// into a snapshot. Everything else is structural noise for our purposes.
var interactiveRoles = map[string]bool{
	"button":       true,
	"link":         true,
	"textbox":      true,
	"searchbox":    true,
	"combobox":     true,
	"listbox":      true,
	"option":       true,
	"checkbox":     true,
	"radio":        true,
	"switch":       true,
	"slider":       true,
	"spinbutton":   true,
	"tab":          true,
	"tablist":      true,
	"menuitem":     true,
	"menu":         true,
	"menubar":      true,
	"treeitem":     true,
	"gridcell":     true,
	"columnheader": true,
	"rowheader":    true,
}

// Capturer reads the page's accessibility tree and projects it into compact
// snapshots. Local ids are assigned here and remain stable for the lifetime
// of one snapshot lineage: the same backend node keeps the same local id
// across successive captures until Reset.
type Capturer struct {
	runner Runner
	logger *zap.Logger

	mu       sync.Mutex
	localIDs map[int64]string
	seq      int
	lastGen  int64
}

// NewCapturer returns a Capturer bound to the given page runner.
func NewCapturer(runner Runner, logger *zap.Logger) *Capturer {
	return &Capturer{
		runner:   runner,
		logger:   logger.Named("axtree"),
		localIDs: make(map[int64]string),
	}
}

// Capture reads the full accessibility tree and projects the interactive
// elements into a Snapshot. Capture is best-effort: a failed read yields a
// snapshot with an empty element list, never an error, so a flaky page can
// not abort a running plan.
func (c *Capturer) Capture(ctx context.Context, traceID string, epoch uint64) schemas.Snapshot {
	var (
		nodes   []*accessibility.Node
		pageURL string
	)
	err := c.runner.Run(ctx,
		chromedp.Location(&pageURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := accessibility.GetFullAXTree().Do(ctx)
			if err != nil {
				return err
			}
			nodes = tree
			return nil
		}),
	)

	snap := schemas.Snapshot{
		SchemaVersion: schemas.SchemaSnapshot,
		ID:            uuid.NewString(),
		TraceID:       traceID,
		PageURL:       pageURL,
		GeneratedAt:   c.nextGeneratedAt(),
		Epoch:         epoch,
		Elements:      []schemas.Element{},
	}

	if err != nil {
		c.logger.Warn("Accessibility tree read failed; returning empty snapshot.",
			zap.String("trace_id", traceID), zap.Error(err))
		return snap
	}

	for _, n := range nodes {
		el, ok := c.project(n)
		if !ok {
			continue
		}
		snap.Elements = append(snap.Elements, el)
	}

	c.logger.Debug("Captured snapshot.",
		zap.String("trace_id", traceID),
		zap.Uint64("epoch", epoch),
		zap.Int("elements", len(snap.Elements)))
	return snap
}

// Reset clears the local id lineage. The session calls this after every
// navigation: backend node ids from the previous document are meaningless and
// the new document starts a fresh lineage.
func (c *Capturer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localIDs = make(map[int64]string)
}

// project maps one accessibility node to an Element, filtering by the
// interactive-role allowlist. State fields the protocol omits default to
// false/empty.
func (c *Capturer) project(n *accessibility.Node) (schemas.Element, bool) {
	if n == nil || n.Ignored || n.BackendDOMNodeID == 0 {
		return schemas.Element{}, false
	}
	role := axString(n.Role)
	if !interactiveRoles[role] {
		return schemas.Element{}, false
	}

	el := schemas.Element{
		LocalID:     c.localID(int64(n.BackendDOMNodeID)),
		Handle:      int64(n.BackendDOMNodeID),
		Role:        role,
		Name:        axString(n.Name),
		Description: axString(n.Description),
		Value:       axString(n.Value),
	}

	for _, p := range n.Properties {
		if p == nil {
			continue
		}
		switch p.Name {
		case accessibility.PropertyNameFocusable:
			el.Focusable = axBool(p.Value)
		case accessibility.PropertyNameFocused:
			el.Focused = axBool(p.Value)
		case accessibility.PropertyNameExpanded:
			el.Expanded = axBool(p.Value)
		case accessibility.PropertyNameDisabled:
			el.Disabled = axBool(p.Value)
		case accessibility.PropertyNameChecked:
			el.Checked = axBool(p.Value)
		case accessibility.PropertyNameSelected:
			el.Selected = axBool(p.Value)
		}
	}

	return el, true
}

// localID returns the stable local id for a backend node, assigning the next
// one in sequence on first sight.
func (c *Capturer) localID(backendID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.localIDs[backendID]; ok {
		return id
	}
	c.seq++
	id := fmt.Sprintf("e%d", c.seq)
	c.localIDs[backendID] = id
	return id
}

// nextGeneratedAt returns a wall-clock millisecond timestamp that is strictly
// monotonic within this lineage even if the clock steps backwards.
func (c *Capturer) nextGeneratedAt() int64 {
	now := time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now <= c.lastGen {
		now = c.lastGen + 1
	}
	c.lastGen = now
	return now
}

// axString decodes an AXValue payload into a plain string.
func axString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err == nil {
		return s
	}
	// Non-string payloads (numbers, etc.) keep their JSON form.
	return string(v.Value)
}

// axBool decodes an AXValue payload into a bool. Tristate string values
// ("true"/"false"/"mixed") count "mixed" as set.
func axBool(v *accessibility.Value) bool {
	if v == nil || len(v.Value) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal([]byte(v.Value), &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err == nil {
		return s == "true" || s == "mixed"
	}
	return false
}
