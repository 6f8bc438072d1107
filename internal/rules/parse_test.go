package rules

import (
	"testing"
)

func TestParse_FieldQualifierOperatorValue(t *testing.T) {
	r := DefaultSchema().Parse("contract_end_date days_until < 30")
	p, ok := r.(Parsed)
	if !ok {
		t.Fatalf("result = %#v, want Parsed", r)
	}
	want := Leaf{Field: "contract_end_date", Qualifier: "days_until", Operator: "<", Value: "30"}
	if *p.Leaf != want {
		t.Errorf("leaf = %+v, want %+v", *p.Leaf, want)
	}
}

func TestParse_DottedFieldWithoutQualifier(t *testing.T) {
	r := DefaultSchema().Parse("upgradeEligibility.eligibilityStatus = Y")
	p, ok := r.(Parsed)
	if !ok {
		t.Fatalf("result = %#v, want Parsed", r)
	}
	if p.Leaf.Field != "upgradeEligibility.eligibilityStatus" {
		t.Errorf("field = %q", p.Leaf.Field)
	}
	if p.Leaf.Qualifier != "" {
		t.Errorf("qualifier = %q, want empty", p.Leaf.Qualifier)
	}
	if p.Leaf.Operator != "=" || p.Leaf.Value != "Y" {
		t.Errorf("operator/value = %q/%q", p.Leaf.Operator, p.Leaf.Value)
	}
}

func TestParse_UnknownField(t *testing.T) {
	r := DefaultSchema().Parse("unknown_field = 1")
	u, ok := r.(Unrecognized)
	if !ok {
		t.Fatalf("result = %#v, want Unrecognized", r)
	}
	if u.Raw != "unknown_field = 1" {
		t.Errorf("raw = %q", u.Raw)
	}
}

func TestParse_TwoCharOperators(t *testing.T) {
	tests := []struct {
		in, op, value string
	}{
		{"ee_service_mrc_incl_vat <= 45.5", "<=", "45.5"},
		{"ee_service_mrc_incl_vat >= 10", ">=", "10"},
		{"flex_pay_eligible != N", "!=", "N"},
		{"device_android=true", "=", "true"},
		{"  contract_start_date days_since>90  ", ">", "90"},
	}
	s := DefaultSchema()
	for _, tt := range tests {
		p, ok := s.Parse(tt.in).(Parsed)
		if !ok {
			t.Errorf("Parse(%q) not recognised", tt.in)
			continue
		}
		if p.Leaf.Operator != tt.op || p.Leaf.Value != tt.value {
			t.Errorf("Parse(%q) = %q %q, want %q %q", tt.in, p.Leaf.Operator, p.Leaf.Value, tt.op, tt.value)
		}
	}
}

func TestParse_QualifierNotCrossChecked(t *testing.T) {
	// The parser keeps whatever qualifier word it sees; Validate flags it.
	p, ok := DefaultSchema().Parse("contract_end_date days_since < 30").(Parsed)
	if !ok {
		t.Fatal("expected Parsed")
	}
	if p.Leaf.Qualifier != "days_since" {
		t.Errorf("qualifier = %q, want days_since", p.Leaf.Qualifier)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"contract_end_date",
		"contract_end_date days until < 30",
		"contract_end_date < ",
		"= 5",
		"flex pay eligible = Y",
	} {
		if _, ok := DefaultSchema().Parse(in).(Unrecognized); !ok {
			t.Errorf("Parse(%q) should be unrecognized", in)
		}
	}
}

func TestParseRuleObjects_DropsUnparseable(t *testing.T) {
	items := []any{
		map[string]any{"rule": "device_google = true"},
		map[string]any{"rule": "customer is happy"},
		map[string]any{"rule": "unknown_field = 1"},
		map[string]any{"other": "x"},
		"flex_pay_eligible = Y",
	}
	tree, discarded := DefaultSchema().ParseRuleObjects(items)
	if len(tree) != 1 {
		t.Fatalf("len(tree) = %d, want 1", len(tree))
	}
	leaf, ok := tree[0].(*Leaf)
	if !ok || leaf.Field != "device_google" {
		t.Errorf("tree[0] = %#v", tree[0])
	}
	if len(discarded) != 4 {
		t.Errorf("len(discarded) = %d, want 4", len(discarded))
	}
	for _, n := range tree {
		if l, ok := n.(*Leaf); ok && (l.Field == "unknown_field" || l.Value == "happy") {
			t.Errorf("unparseable string leaked into tree: %+v", l)
		}
	}
}

func TestParseRuleObjects_EmptyInputGivesEmptyTree(t *testing.T) {
	tree, discarded := DefaultSchema().ParseRuleObjects(nil)
	if tree == nil || len(tree) != 0 {
		t.Errorf("tree = %#v, want empty non-nil", tree)
	}
	if len(discarded) != 0 {
		t.Errorf("discarded = %v", discarded)
	}
}

func TestParse_ValueStopsAtLineEnd(t *testing.T) {
	tests := map[string]string{
		"contract_end_date days_until < 30\nextra notes": "30",
		"contract_end_date days_until <\n  30\nmore":     "30",
		"contract_end_date days_until < 30\r\n":          "30",
	}
	for in, want := range tests {
		p, ok := DefaultSchema().Parse(in).(Parsed)
		if !ok {
			t.Errorf("Parse(%q) not recognized", in)
			continue
		}
		if p.Leaf.Value != want {
			t.Errorf("Parse(%q) value = %q, want %q", in, p.Leaf.Value, want)
		}
	}
}
