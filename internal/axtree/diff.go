// internal/axtree/diff.go
package axtree

import (
	"strconv"
	"strings"

	"github.com/axpilot/axpilot/api/schemas"
)

// DefaultVolumeThreshold is the empirically chosen cutoff for the diff-volume
// heuristic (2*added + changed). Tunable via config, not a load-bearing
// invariant.
const DefaultVolumeThreshold = 4

// DiffEngine computes structural deltas between two snapshots of the same
// trace and classifies whether a delta should interrupt plan execution.
type DiffEngine struct {
	volumeThreshold int
}

// NewDiffEngine returns a DiffEngine with the given volume threshold;
// non-positive values fall back to the default.
func NewDiffEngine(volumeThreshold int) *DiffEngine {
	if volumeThreshold <= 0 {
		volumeThreshold = DefaultVolumeThreshold
	}
	return &DiffEngine{volumeThreshold: volumeThreshold}
}

// Signature folds an element's semantic fields into a single comparable
// string, turning changed-detection into a signature inequality check.
func Signature(e schemas.Element) string {
	var b strings.Builder
	b.WriteString(e.Role)
	b.WriteByte('|')
	b.WriteString(e.Name)
	b.WriteByte('|')
	b.WriteString(e.Description)
	b.WriteByte('|')
	b.WriteString(e.Value)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Focusable))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Focused))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Expanded))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Disabled))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Checked))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Selected))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.Handle, 10))
	return b.String()
}

// Diff computes the added/removed/changed delta between old and new. Element
// identity is the local id; an element present in both snapshots is changed
// when its signature differs.
func (d *DiffEngine) Diff(old, new schemas.Snapshot) schemas.Diff {
	oldByID := make(map[string]schemas.Element, len(old.Elements))
	for _, el := range old.Elements {
		oldByID[el.LocalID] = el
	}

	diff := schemas.Diff{
		SchemaVersion: schemas.SchemaDiff,
		TraceID:       new.TraceID,
		Added:         []schemas.Element{},
		Removed:       []schemas.Element{},
		Changed:       []schemas.Change{},
	}

	seen := make(map[string]bool, len(new.Elements))
	for _, el := range new.Elements {
		seen[el.LocalID] = true
		before, ok := oldByID[el.LocalID]
		if !ok {
			diff.Added = append(diff.Added, el)
			continue
		}
		if Signature(before) != Signature(el) {
			diff.Changed = append(diff.Changed, schemas.Change{Before: before, After: el})
		}
	}
	for _, el := range old.Elements {
		if !seen[el.LocalID] {
			diff.Removed = append(diff.Removed, el)
		}
	}

	diff.Counts = schemas.DiffCounts{
		Added:   len(diff.Added),
		Removed: len(diff.Removed),
		Changed: len(diff.Changed),
	}
	return diff
}

// stateFlagFlipped reports whether any of the interaction-state flags
// (expanded/selected/checked/disabled/focused) differs across the change.
func stateFlagFlipped(ch schemas.Change) bool {
	return ch.Before.Expanded != ch.After.Expanded ||
		ch.Before.Selected != ch.After.Selected ||
		ch.Before.Checked != ch.After.Checked ||
		ch.Before.Disabled != ch.After.Disabled ||
		ch.Before.Focused != ch.After.Focused
}

// ShouldReplan classifies a diff produced by the given trigger step.
//
// Only click and focus steps are eligible: typing and scrolling churn the
// tree in ways that are expected, not interruptions. Within an eligible diff,
// a lone signature change on the clicked element itself is noise unless a
// state flag flipped; any state-flag flip is always relevant; otherwise the
// volume heuristic decides.
func (d *DiffEngine) ShouldReplan(diff schemas.Diff, trigger schemas.Step) bool {
	if trigger.Action != schemas.ActionClick && trigger.Action != schemas.ActionFocus {
		return false
	}

	// Trivial self-change: the only change is the triggering element itself
	// and nothing meaningful flipped.
	if len(diff.Changed) == 1 && len(diff.Added) == 0 &&
		diff.Changed[0].After.Handle == trigger.Handle &&
		!stateFlagFlipped(diff.Changed[0]) {
		return false
	}

	for _, ch := range diff.Changed {
		if stateFlagFlipped(ch) {
			return true
		}
	}

	if 2*diff.Counts.Added+diff.Counts.Changed >= d.volumeThreshold {
		return true
	}
	if diff.Counts.Added >= 1 && diff.Counts.Changed >= 1 {
		return true
	}
	return false
}

// FocusIDs collects the local ids of added and changed elements, in snapshot
// order, for the focus hint on a follow-up plan request.
func FocusIDs(diff schemas.Diff) []string {
	ids := make([]string, 0, len(diff.Added)+len(diff.Changed))
	for _, el := range diff.Added {
		ids = append(ids, el.LocalID)
	}
	for _, ch := range diff.Changed {
		ids = append(ids, ch.After.LocalID)
	}
	return ids
}
