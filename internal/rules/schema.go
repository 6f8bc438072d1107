// Package rules models card eligibility rules: a tree of AND/OR groups over
// field/operator/value comparisons, plus its string parser and editor.
package rules

import "slices"

// FieldType selects the value control a field is edited with.
type FieldType string

// Field types.
const (
	FieldEnum    FieldType = "enum"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Operators lists the comparison operators in display order.
var Operators = []string{"=", "!=", "<", ">", "<=", ">="}

// Field describes one rule field.
type Field struct {
	Name       string    `yaml:"name" toml:"name" json:"name"`
	Type       FieldType `yaml:"type" toml:"type" json:"type"`
	Options    []string  `yaml:"options,omitempty" toml:"options" json:"options,omitempty"`
	Qualifiers []string  `yaml:"qualifiers,omitempty" toml:"qualifiers" json:"qualifiers,omitempty"`
}

// Schema is the ordered set of fields a rule may reference.
type Schema struct {
	Fields []Field `json:"fields"`
}

// DefaultSchema returns the built-in field schema.
func DefaultSchema() *Schema {
	return &Schema{Fields: []Field{
		{Name: "upgradeEligibility.eligibilityStatus", Type: FieldEnum, Options: []string{"Y", "N", "U"}},
		{Name: "contract_end_date", Type: FieldNumber, Qualifiers: []string{"days_until"}},
		{Name: "contract_start_date", Type: FieldNumber, Qualifiers: []string{"days_since"}},
		{Name: "device_android", Type: FieldBoolean},
		{Name: "device_google", Type: FieldBoolean},
		{Name: "flex_pay_eligible", Type: FieldEnum, Options: []string{"Y", "N"}},
		{Name: "ee_service_mrc_incl_vat", Type: FieldNumber},
		{Name: "ee_high_credit_risk_score", Type: FieldBoolean},
	}}
}

// Lookup returns the field with the given name.
func (s *Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Known reports whether name is a schema field.
func (s *Schema) Known(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// FieldNames returns field names in schema order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// First returns the first schema field, used for new rules.
func (s *Schema) First() Field {
	if len(s.Fields) == 0 {
		return Field{}
	}
	return s.Fields[0]
}

// IsOperator reports whether op is a supported comparison operator.
func IsOperator(op string) bool {
	return slices.Contains(Operators, op)
}

// AllowsQualifier reports whether q is one of the field's qualifiers.
func (f Field) AllowsQualifier(q string) bool {
	return slices.Contains(f.Qualifiers, q)
}

// ValueChoices returns the fixed choices of a select/checkbox control, or
// nil for free text.
func (f Field) ValueChoices() []string {
	switch f.Type {
	case FieldBoolean:
		return []string{"true", "false"}
	case FieldEnum:
		return f.Options
	default:
		return nil
	}
}

// DefaultValue is the value a control shows when the stored one is not a
// valid choice.
func (f Field) DefaultValue() string {
	switch f.Type {
	case FieldBoolean:
		return "false"
	case FieldEnum:
		if len(f.Options) > 0 {
			return f.Options[0]
		}
	}
	return ""
}

// CoerceValue maps v onto the field's control domain.
func (f Field) CoerceValue(v string) string {
	choices := f.ValueChoices()
	if choices == nil || slices.Contains(choices, v) {
		return v
	}
	return f.DefaultValue()
}
