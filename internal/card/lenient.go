package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/starford/cardsmith/internal/jsonenc"
)

// Keys the Card struct encodes itself. Anything else read from a document
// is kept in Extra and written back unchanged.
var cardKeys = []string{
	"actionCardId", "name", "category", "description", "enabled", "metadata",
	"tags", "sections", "eligibilityRules", "contentVariants", "notes",
}

type cardJSON Card

// UnmarshalJSON reads a card from model or user JSON. Scalars of the wrong
// kind are converted rather than rejected: numbers become text, "true" and
// "false" become flags, a single object stands in for a list of variants.
func (c *Card) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("card: expected a JSON object")
	}
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*c = Card{}
	for key, raw := range fields {
		var err error
		switch key {
		case "actionCardId":
			c.ActionCardID = text(raw)
		case "name":
			c.Name = text(raw)
		case "category":
			c.Category = text(raw)
		case "description":
			c.Description = text(raw)
		case "notes":
			c.Notes = text(raw)
		case "enabled":
			c.Enabled = flag(raw)
		case "metadata":
			err = json.Unmarshal(raw, &c.Metadata)
		case "tags":
			err = json.Unmarshal(raw, &c.Tags)
		case "sections":
			err = json.Unmarshal(raw, &c.Sections)
		case "eligibilityRules":
			err = json.Unmarshal(raw, &c.EligibilityRules)
		case "contentVariants":
			c.ContentVariants, err = variants(raw)
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]json.RawMessage)
			}
			c.Extra[key] = append(json.RawMessage(nil), raw...)
		}
		if err != nil {
			return fmt.Errorf("card: %s: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON writes the known fields in declaration order followed by the
// extra keys in sorted order.
func (c Card) MarshalJSON() ([]byte, error) {
	data, err := jsonenc.Marshal((*cardJSON)(&c))
	if err != nil || len(c.Extra) == 0 {
		return data, err
	}
	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		if !slices.Contains(cardKeys, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	buf := bytes.NewBuffer(data[:len(data)-1])
	empty := len(bytes.TrimSpace(data)) == 2
	for _, k := range keys {
		name, err := jsonenc.Marshal(k)
		if err != nil {
			return nil, err
		}
		if !empty {
			buf.WriteByte(',')
		}
		empty = false
		buf.Write(name)
		buf.WriteByte(':')
		if err := json.Compact(buf, c.Extra[k]); err != nil {
			return nil, fmt.Errorf("card: extra %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*m = Metadata{}
	setText(fields, map[string]*string{
		"manufacturer": &m.Manufacturer,
		"location":     &m.Location,
		"productType":  &m.ProductType,
		"activeState":  &m.ActiveState,
	})
	if raw, ok := fields["channel"]; ok {
		return json.Unmarshal(raw, &m.Channel)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tags) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*t = Tags{}
	lists := map[string]*StringList{
		"Product Tags":        &t.Product,
		"Life Stage Tags":     &t.LifeStage,
		"Intent Tags":         &t.Intent,
		"Business Label Tags": &t.BusinessLabel,
	}
	for key, dst := range lists {
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sections) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*s = Sections{}
	setText(fields, map[string]*string{"location": &s.Location})
	if raw, ok := fields["channel"]; ok {
		return json.Unmarshal(raw, &s.Channel)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (cv *ContentVariant) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*cv = ContentVariant{}
	setText(fields, map[string]*string{
		"deviceFeature": &cv.DeviceFeature,
		"body":          &cv.Body,
		"title":         &cv.Title,
		"ctaText":       &cv.CTAText,
		"appDeepLink":   &cv.AppDeepLink,
		"webUrl":        &cv.WebURL,
	})
	return nil
}

// objectFields splits a JSON object into its members. Non-object values
// yield no members.
func objectFields(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func setText(fields map[string]json.RawMessage, dst map[string]*string) {
	for key, p := range dst {
		if raw, ok := fields[key]; ok {
			*p = text(raw)
		}
	}
}

// variants reads a list of content variants. A lone object is a
// one-element list; entries that are not objects are skipped.
func variants(raw json.RawMessage) ([]ContentVariant, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case '{':
		var cv ContentVariant
		if err := json.Unmarshal(raw, &cv); err != nil {
			return nil, err
		}
		return []ContentVariant{cv}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]ContentVariant, 0, len(items))
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			var cv ContentVariant
			if err := json.Unmarshal(item, &cv); err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	}
	return nil, nil
}

// text renders a JSON value as the text a form field would hold. Lists are
// joined one item per line.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if s := text(item); s != "" {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, "\n")
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// flag reads a boolean written as a JSON bool, a string or 0/1. Anything
// else leaves the flag unset.
func flag(raw json.RawMessage) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(text(raw))) {
	case "true", "yes", "y", "1":
		v = true
	case "false", "no", "n", "0":
		v = false
	default:
		return nil
	}
	return &v
}
