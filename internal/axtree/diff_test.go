// internal/axtree/diff_test.go
package axtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axpilot/axpilot/api/schemas"
)

func snapWith(elements ...schemas.Element) schemas.Snapshot {
	return schemas.Snapshot{
		SchemaVersion: schemas.SchemaSnapshot,
		ID:            "snap",
		TraceID:       "trace-1",
		Elements:      elements,
	}
}

func button(localID string, handle int64, name string) schemas.Element {
	return schemas.Element{
		LocalID:   localID,
		Handle:    handle,
		Role:      "button",
		Name:      name,
		Focusable: true,
	}
}

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	d := NewDiffEngine(0)
	snap := snapWith(button("e1", 10, "Search"), button("e2", 11, "Cancel"))

	diff := d.Diff(snap, snap)

	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Empty(t, diff.Changed)
	assert.Equal(t, schemas.DiffCounts{}, diff.Counts)
	assert.Equal(t, "trace-1", diff.TraceID)
}

func TestDiffDetectsAddedRemovedChanged(t *testing.T) {
	d := NewDiffEngine(0)
	old := snapWith(
		button("e1", 10, "Search"),
		button("e2", 11, "Cancel"),
	)
	renamed := button("e1", 10, "Search flights")
	new := snapWith(
		renamed,
		button("e3", 12, "Help"),
	)

	diff := d.Diff(old, new)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "e3", diff.Added[0].LocalID)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "e2", diff.Removed[0].LocalID)
	require.Len(t, diff.Changed, 1)
	assert.Equal(t, "Search", diff.Changed[0].Before.Name)
	assert.Equal(t, "Search flights", diff.Changed[0].After.Name)
	assert.Equal(t, schemas.DiffCounts{Added: 1, Removed: 1, Changed: 1}, diff.Counts)
}

func TestDiffStateFlagChangeIsChanged(t *testing.T) {
	d := NewDiffEngine(0)
	before := button("e1", 10, "Departure date")
	after := before
	after.Expanded = true

	diff := d.Diff(snapWith(before), snapWith(after))

	require.Len(t, diff.Changed, 1)
	assert.True(t, stateFlagFlipped(diff.Changed[0]))
}

func TestShouldReplanIgnoresNonInteractiveTriggers(t *testing.T) {
	d := NewDiffEngine(0)
	diff := schemas.Diff{
		Added:  []schemas.Element{button("e5", 20, "Suggestion")},
		Counts: schemas.DiffCounts{Added: 5, Changed: 5},
	}

	for _, action := range []schemas.ActionType{
		schemas.ActionInput, schemas.ActionScroll, schemas.ActionNavigate,
	} {
		assert.False(t, d.ShouldReplan(diff, schemas.Step{Action: action}),
			"action %s must never trigger replanning", action)
	}
}

func TestShouldReplanSuppressesTrivialSelfChange(t *testing.T) {
	d := NewDiffEngine(0)
	before := button("e1", 10, "Submit")
	after := before
	after.Name = "Submitting..."

	diff := d.Diff(snapWith(before), snapWith(after))

	trigger := schemas.Step{Action: schemas.ActionClick, Handle: 10}
	assert.False(t, d.ShouldReplan(diff, trigger))
}

func TestShouldReplanOnSelfStateFlip(t *testing.T) {
	d := NewDiffEngine(0)
	before := button("e1", 10, "Filters")
	after := before
	after.Expanded = true

	diff := d.Diff(snapWith(before), snapWith(after))

	trigger := schemas.Step{Action: schemas.ActionClick, Handle: 10}
	assert.True(t, d.ShouldReplan(diff, trigger))
}

func TestShouldReplanOnVolume(t *testing.T) {
	d := NewDiffEngine(4)
	old := snapWith()
	new := snapWith(
		button("e1", 10, "Option A"),
		button("e2", 11, "Option B"),
	)

	diff := d.Diff(old, new)

	// 2 added, 0 changed: 2*2+0 >= 4.
	trigger := schemas.Step{Action: schemas.ActionClick, Handle: 99}
	assert.True(t, d.ShouldReplan(diff, trigger))
}

func TestShouldReplanBelowVolumeWithoutFlags(t *testing.T) {
	d := NewDiffEngine(4)
	diff := schemas.Diff{
		Added:  []schemas.Element{button("e1", 10, "Hint")},
		Counts: schemas.DiffCounts{Added: 1},
	}

	trigger := schemas.Step{Action: schemas.ActionClick, Handle: 99}
	assert.False(t, d.ShouldReplan(diff, trigger))
}

func TestShouldReplanOnAddedPlusChanged(t *testing.T) {
	d := NewDiffEngine(10)
	before := button("e1", 10, "Sort")
	after := before
	after.Value = "price"

	diff := d.Diff(snapWith(before), snapWith(after, button("e2", 11, "Cheapest")))

	trigger := schemas.Step{Action: schemas.ActionClick, Handle: 10}
	assert.True(t, d.ShouldReplan(diff, trigger))
}

func TestFocusIDsCoverAddedAndChanged(t *testing.T) {
	d := NewDiffEngine(0)
	before := button("e1", 10, "Sort")
	after := before
	after.Value = "price"

	diff := d.Diff(snapWith(before), snapWith(after, button("e2", 11, "Cheapest")))

	assert.Equal(t, []string{"e2", "e1"}, FocusIDs(diff))
}

func TestSignatureCoversAllSemanticFields(t *testing.T) {
	base := button("e1", 10, "Search")
	mutations := []func(*schemas.Element){
		func(e *schemas.Element) { e.Role = "link" },
		func(e *schemas.Element) { e.Name = "x" },
		func(e *schemas.Element) { e.Description = "x" },
		func(e *schemas.Element) { e.Value = "x" },
		func(e *schemas.Element) { e.Focusable = !e.Focusable },
		func(e *schemas.Element) { e.Focused = true },
		func(e *schemas.Element) { e.Expanded = true },
		func(e *schemas.Element) { e.Disabled = true },
		func(e *schemas.Element) { e.Checked = true },
		func(e *schemas.Element) { e.Selected = true },
		func(e *schemas.Element) { e.Handle = 99 },
	}
	for i, mutate := range mutations {
		el := base
		mutate(&el)
		assert.NotEqual(t, Signature(base), Signature(el), "mutation %d not covered", i)
	}
}
