package card

import (
	"fmt"
	"slices"
	"strings"
)

// Warning is a non-blocking problem surfaced next to the form.
type Warning struct {
	Field   string   `json:"field"`
	Values  []string `json:"values,omitempty"`
	Message string   `json:"message"`
}

// FilterAllowed splits values into those present in allowed and the rest,
// keeping input order in both.
func FilterAllowed(values, allowed []string) (valid, invalid []string) {
	valid = []string{}
	for _, v := range values {
		if slices.Contains(allowed, v) {
			valid = append(valid, v)
		} else {
			invalid = append(invalid, v)
		}
	}
	return valid, invalid
}

// IgnoredWarning builds the warning shown when values were filtered out.
func IgnoredWarning(field, label string, invalid []string) Warning {
	return Warning{
		Field:   field,
		Values:  invalid,
		Message: fmt.Sprintf("Ignored invalid %s: %s", label, strings.Join(invalid, ", ")),
	}
}
