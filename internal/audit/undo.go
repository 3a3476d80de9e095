package audit

import "strings"

var (
	undoableActions  = []string{"created", "updated", "deleted"}
	undoableEntities = []string{"book", "chapter", "block", "registration_key", "school"}
)

// ClassifyUndo reports whether a record with the given action and entity type
// is offered for undo.
//
// Matching is by case-insensitive substring on both inputs, so "notebook" and
// "recreated" also qualify. The backend makes the final decision on every undo
// request; this only controls whether the console offers the action.
func ClassifyUndo(action, entityType string) bool {
	return containsAny(strings.ToLower(action), undoableActions) &&
		containsAny(strings.ToLower(entityType), undoableEntities)
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
