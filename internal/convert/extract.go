package convert

import (
	"regexp"
	"strings"
)

var fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON returns the object inside the first fenced block of text, or
// the trimmed text when there is none.
func ExtractJSON(text string) string {
	if m := fencedObject.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}
