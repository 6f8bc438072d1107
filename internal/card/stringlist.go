package card

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/cardsmith/internal/jsonenc"
)

// StringList is a list of strings that also accepts a single JSON scalar,
// an object or null, which LLM output produces in place of a list. Objects
// read as no list at all.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*l = StringList{}
		} else {
			*l = StringList{s}
		}
		return nil
	case len(data) > 0 && data[0] == '{':
		*l = nil
		return nil
	case len(data) > 0 && data[0] != '[':
		*l = StringList{text(data)}
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("card: expected string list: %w", err)
	}
	out := make(StringList, 0, len(raw))
	for _, v := range raw {
		if v == nil {
			continue
		}
		out = append(out, fmt.Sprint(v))
	}
	*l = out
	return nil
}

// MarshalJSON encodes nil as an empty list.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return jsonenc.Marshal([]string(l))
}
