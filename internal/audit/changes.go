package audit

import "fmt"

// NullMarker is shown in place of a null or missing change value.
const NullMarker = "∅"

// FormatChanges renders one "field: old → new" line per change, preserving order.
func FormatChanges(changes []FieldChange) []string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, fmt.Sprintf("%s: %s → %s", c.Field, displayValue(c.OldValue), displayValue(c.NewValue)))
	}
	return lines
}

func displayValue(v Value) string {
	if v.IsNull() {
		return NullMarker
	}
	return v.Quote()
}
