package rules

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleTree() Tree {
	return Tree{
		&Group{Conjunction: And, Rules: []Node{
			&Leaf{Field: "contract_end_date", Qualifier: "days_until", Operator: "<", Value: "30"},
			&Group{Conjunction: Or, Rules: []Node{
				&Leaf{Field: "device_android", Operator: "=", Value: "true"},
			}},
		}},
	}
}

func TestPath_StringAndParse(t *testing.T) {
	p := Path{0, 1, 12}
	if p.String() != "root_0_1_12" {
		t.Errorf("String() = %q", p.String())
	}
	back, err := ParsePath("root_0_1_12")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, back); diff != "" {
		t.Errorf("ParsePath mismatch: %s", diff)
	}
	root, err := ParsePath("root")
	if err != nil || len(root) != 0 {
		t.Errorf("ParsePath(root) = %v, %v", root, err)
	}
	if _, err := ParsePath("top_1"); !errors.Is(err, ErrBadPath) {
		t.Errorf("ParsePath(top_1) err = %v", err)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := DefaultSchema()
	in := sampleTree()
	before := in.Clone()

	out, err := s.Reduce(in, SetValue{Path: Path{0, 0}, Value: "60"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, in); diff != "" {
		t.Errorf("input mutated (-before +after):\n%s", diff)
	}
	if got := out[0].(*Group).Rules[0].(*Leaf).Value; got != "60" {
		t.Errorf("value = %q, want 60", got)
	}
}

func TestReduce_AddRuleAppendsAtAddressedLevelOnly(t *testing.T) {
	s := DefaultSchema()
	out, err := s.Reduce(sampleTree(), AddRule{Path: Path{0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	inner := out[0].(*Group).Rules[1].(*Group)
	if len(inner.Rules) != 2 {
		t.Fatalf("inner len = %d, want 2", len(inner.Rules))
	}
	want := &Leaf{Field: "upgradeEligibility.eligibilityStatus", Operator: "=", Value: ""}
	if diff := cmp.Diff(want, inner.Rules[1]); diff != "" {
		t.Errorf("new rule mismatch: %s", diff)
	}
	if len(out[0].(*Group).Rules) != 2 || len(out) != 1 {
		t.Error("other levels changed")
	}
}

func TestReduce_AddGroupAtTopLevel(t *testing.T) {
	s := DefaultSchema()
	out, err := s.Reduce(nil, AddGroup{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Tree{NewGroup(And)}, out); diff != "" {
		t.Errorf("tree mismatch: %s", diff)
	}
}

func TestReduce_SetConjunction(t *testing.T) {
	s := DefaultSchema()
	out, err := s.Reduce(sampleTree(), SetConjunction{Path: Path{0}, Conjunction: Or})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].(*Group).Conjunction != Or {
		t.Errorf("conjunction = %q", out[0].(*Group).Conjunction)
	}
	if _, err := s.Reduce(sampleTree(), SetConjunction{Path: Path{0}, Conjunction: "XOR"}); err == nil {
		t.Error("XOR should be rejected")
	}
	if _, err := s.Reduce(sampleTree(), SetConjunction{Path: Path{0, 0}, Conjunction: Or}); !errors.Is(err, ErrBadPath) {
		t.Errorf("conjunction on a rule err = %v, want ErrBadPath", err)
	}
}

func TestReduce_SetFieldRefitsQualifierAndValue(t *testing.T) {
	s := DefaultSchema()
	out, err := s.Reduce(sampleTree(), SetField{Path: Path{0, 0}, Field: "flex_pay_eligible"})
	if err != nil {
		t.Fatal(err)
	}
	got := out[0].(*Group).Rules[0].(*Leaf)
	want := &Leaf{Field: "flex_pay_eligible", Operator: "<", Value: "Y"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("leaf mismatch (-want +got):\n%s", diff)
	}

	out, err = s.Reduce(out, SetField{Path: Path{0, 0}, Field: "contract_start_date"})
	if err != nil {
		t.Fatal(err)
	}
	if q := out[0].(*Group).Rules[0].(*Leaf).Qualifier; q != "days_since" {
		t.Errorf("qualifier = %q, want days_since", q)
	}
}

func TestReduce_RejectsInvalidEdits(t *testing.T) {
	s := DefaultSchema()
	cases := []Event{
		SetField{Path: Path{0, 0}, Field: "nope"},
		SetOperator{Path: Path{0, 0}, Operator: "=="},
		SetQualifier{Path: Path{0, 0}, Qualifier: "days_since"},
		SetValue{Path: Path{0, 1, 0}, Value: "maybe"},
		AddRule{Path: Path{0, 0}},
		AddGroup{Path: Path{5}},
	}
	for _, ev := range cases {
		if _, err := s.Reduce(sampleTree(), ev); err == nil {
			t.Errorf("Reduce(%#v) should fail", ev)
		}
	}
}

func TestNormalize_ValidTreeIsIdentity(t *testing.T) {
	s := DefaultSchema()
	in := sampleTree()
	if diff := cmp.Diff(in, s.Normalize(in)); diff != "" {
		t.Errorf("normalize changed a valid tree:\n%s", diff)
	}
}

func TestNormalize_FitsInvalidLeaves(t *testing.T) {
	s := DefaultSchema()
	in := Tree{
		&Leaf{Field: "mystery", Operator: "~", Value: "x"},
		&Leaf{Field: "device_google", Qualifier: "days_until", Operator: "=", Value: "True"},
		&Group{Conjunction: "xor"},
	}
	want := Tree{
		&Leaf{Field: "upgradeEligibility.eligibilityStatus", Operator: "=", Value: "Y"},
		&Leaf{Field: "device_google", Operator: "=", Value: "false"},
		&Group{Conjunction: And, Rules: []Node{}},
	}
	if diff := cmp.Diff(want, s.Normalize(in)); diff != "" {
		t.Errorf("normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderTree_ControlKinds(t *testing.T) {
	s := DefaultSchema()
	tree := Tree{&Group{Conjunction: And, Rules: []Node{
		&Leaf{Field: "device_android", Operator: "=", Value: "true"},
		&Leaf{Field: "flex_pay_eligible", Operator: "=", Value: "N"},
		&Leaf{Field: "ee_service_mrc_incl_vat", Operator: ">", Value: "20"},
	}}}
	v := s.RenderTree(tree)
	if len(v.Nodes) != 1 || v.Nodes[0].Group == nil {
		t.Fatalf("nodes = %+v", v.Nodes)
	}
	g := v.Nodes[0].Group
	if g.AddRuleKey != "root_0_add_rule" {
		t.Errorf("add rule key = %q", g.AddRuleKey)
	}
	kinds := []string{ControlCheckbox, ControlSelect, ControlText}
	for i, want := range kinds {
		child := g.Children[i]
		if child.Leaf == nil {
			t.Fatalf("child %d is not a leaf", i)
		}
		if child.Leaf.ValueKind != want {
			t.Errorf("child %d kind = %q, want %q", i, child.Leaf.ValueKind, want)
		}
		if child.Depth != 1 {
			t.Errorf("child %d depth = %d", i, child.Depth)
		}
	}
	if g.Children[2].Key != "root_0_2" {
		t.Errorf("key = %q", g.Children[2].Key)
	}
	if v.AddRuleKey != "root_add_rule" {
		t.Errorf("top add key = %q", v.AddRuleKey)
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	s := DefaultSchema()
	tree := Tree{
		&Leaf{Field: "contract_end_date", Qualifier: "days_since", Operator: "<", Value: "3"},
		&Group{Conjunction: "NAND", Rules: []Node{
			&Leaf{Field: "unknown", Operator: "=~", Value: "x"},
		}},
	}
	issues := s.Validate(tree)
	if len(issues) != 4 {
		t.Fatalf("issues = %+v, want 4", issues)
	}
	if issues[0].Key != "root_0" {
		t.Errorf("first issue key = %q", issues[0].Key)
	}
	if len(s.Validate(sampleTree())) != 0 {
		t.Errorf("valid tree reported issues: %+v", s.Validate(sampleTree()))
	}
}
