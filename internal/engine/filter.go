// internal/engine/filter.go
package engine

import (
	"strings"

	"github.com/axpilot/axpilot/api/schemas"
)

// filterPostInteraction trims a post-interaction plan of steps the triggering
// interaction already made redundant:
//
//   - a click or focus on the trigger element itself would repeat the
//     interaction that caused the replan, so it is always dropped;
//   - input steps whose target already holds the desired value are dropped,
//     but only when the plan still contains a confirm-like step to advance
//     with, otherwise the plan could be filtered into doing nothing.
//
// When filtering would empty the plan the unfiltered steps (minus the
// trigger repeat) are kept: a too-aggressive filter must not erase intent.
func filterPostInteraction(steps []schemas.Step, triggerHandle int64, snap schemas.Snapshot, confirmKeywords []string) []schemas.Step {
	byHandle := make(map[int64]schemas.Element, len(snap.Elements))
	for _, el := range snap.Elements {
		byHandle[el.Handle] = el
	}

	withoutTrigger := make([]schemas.Step, 0, len(steps))
	for _, step := range steps {
		if isTriggerRepeat(step, triggerHandle) {
			continue
		}
		withoutTrigger = append(withoutTrigger, step)
	}

	hasConfirm := false
	for _, step := range withoutTrigger {
		if isConfirmLike(step, byHandle, confirmKeywords) {
			hasConfirm = true
			break
		}
	}
	if !hasConfirm {
		return withoutTrigger
	}

	filtered := make([]schemas.Step, 0, len(withoutTrigger))
	for _, step := range withoutTrigger {
		if isRedundantInput(step, byHandle) {
			continue
		}
		filtered = append(filtered, step)
	}
	if len(filtered) == 0 {
		return withoutTrigger
	}
	return filtered
}

// isTriggerRepeat reports whether a step would re-run the interaction that
// triggered the replan.
func isTriggerRepeat(step schemas.Step, triggerHandle int64) bool {
	if triggerHandle == 0 {
		return false
	}
	return (step.Action == schemas.ActionClick || step.Action == schemas.ActionFocus) &&
		step.Handle == triggerHandle
}

// isRedundantInput reports whether an input step's target already holds the
// value the step would type.
func isRedundantInput(step schemas.Step, byHandle map[int64]schemas.Element) bool {
	if step.Action != schemas.ActionInput && step.Action != schemas.ActionInputSelect {
		return false
	}
	el, ok := byHandle[step.Handle]
	if !ok {
		return false
	}
	return el.Value != "" && strings.EqualFold(strings.TrimSpace(el.Value), strings.TrimSpace(step.Value))
}

// isConfirmLike reports whether a non-input step looks like it advances the
// flow (search/submit/continue style), judged by its target's accessible name
// against the configured keyword table.
func isConfirmLike(step schemas.Step, byHandle map[int64]schemas.Element, confirmKeywords []string) bool {
	if step.Action != schemas.ActionClick {
		return false
	}
	el, ok := byHandle[step.Handle]
	if !ok {
		return false
	}
	name := strings.ToLower(el.Name)
	for _, kw := range confirmKeywords {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
