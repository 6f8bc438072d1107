package card

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cardsmith/internal/rules"
)

func TestDecode_TolerantLists(t *testing.T) {
	in := `{"name":"Upgrade Test","metadata":{"channel":"App and Web"},` +
		`"tags":{"Product Tags":["Handset",null],"Intent Tags":null},"sections":{"channel":[]}}`
	c, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]string{"App and Web"}, []string(c.Metadata.Channel)); diff != "" {
		t.Errorf("channel mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"Handset"}, []string(c.Tags.Product)); diff != "" {
		t.Errorf("product tags mismatch: %s", diff)
	}
	if c.Tags.Intent != nil {
		t.Errorf("intent = %#v, want nil", c.Tags.Intent)
	}
	if c.EligibilityRules != nil {
		t.Errorf("rules = %#v, want nil", c.EligibilityRules)
	}
}

func TestEnsureDefaults_FillsMissing(t *testing.T) {
	c := &Card{Name: "x"}
	EnsureDefaults(c)

	if !c.IsEnabled() {
		t.Error("enabled should default to true")
	}
	if diff := cmp.Diff([]string{"App", "Web"}, []string(c.Sections.Channel)); diff != "" {
		t.Errorf("section channels mismatch: %s", diff)
	}
	if len(c.ContentVariants) != 1 {
		t.Errorf("len(contentVariants) = %d, want 1", len(c.ContentVariants))
	}
	if diff := cmp.Diff(rules.DefaultTree(), c.EligibilityRules); diff != "" {
		t.Errorf("rules mismatch: %s", diff)
	}
	for _, cat := range TagCategories {
		if c.Tags.Get(cat) == nil {
			t.Errorf("tag category %s left nil", cat)
		}
	}
}

func TestEnsureDefaults_KeepsPresentValues(t *testing.T) {
	disabled := false
	c := &Card{
		Enabled:          &disabled,
		Sections:         &Sections{Channel: StringList{}},
		EligibilityRules: rules.Tree{},
		ContentVariants:  []ContentVariant{{Title: "a"}, {Title: "b"}},
	}
	EnsureDefaults(c)
	if c.IsEnabled() {
		t.Error("enabled=false overwritten")
	}
	if len(c.Sections.Channel) != 0 {
		t.Errorf("section channels = %v, want empty", c.Sections.Channel)
	}
	if len(c.EligibilityRules) != 0 {
		t.Errorf("empty rule list replaced: %v", c.EligibilityRules)
	}
	if len(c.ContentVariants) != 2 {
		t.Errorf("variants = %d, want 2", len(c.ContentVariants))
	}
}

func TestClone_Independent(t *testing.T) {
	c := &Card{Name: "n", Metadata: &Metadata{Channel: StringList{"App"}},
		EligibilityRules: rules.Tree{&rules.Leaf{Field: "device_google", Operator: "=", Value: "true"}}}
	cp := c.Clone()
	if diff := cmp.Diff(c, cp); diff != "" {
		t.Fatalf("clone differs: %s", diff)
	}
	cp.Metadata.Channel[0] = "Web"
	cp.EligibilityRules[0].(*rules.Leaf).Value = "false"
	if c.Metadata.Channel[0] != "App" || c.EligibilityRules[0].(*rules.Leaf).Value != "true" {
		t.Error("clone shares state with the original")
	}
}

func TestMarshal_RuleTreeAndTagKeys(t *testing.T) {
	c := &Card{Name: "n", Tags: &Tags{Product: StringList{"TV AddOn"}}}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"Product Tags":["TV AddOn"]`, `"Life Stage Tags":[]`, `"eligibilityRules":null`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
}

func TestFilterAllowed(t *testing.T) {
	valid, invalid := FilterAllowed([]string{"App", "Fax", "Web", "Pigeon"}, []string{"App", "Web", "Store"})
	if diff := cmp.Diff([]string{"App", "Web"}, valid); diff != "" {
		t.Errorf("valid mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"Fax", "Pigeon"}, invalid); diff != "" {
		t.Errorf("invalid mismatch: %s", diff)
	}
	w := IgnoredWarning("metadata.channel", "channels", invalid)
	if w.Message != "Ignored invalid channels: Fax, Pigeon" {
		t.Errorf("message = %q", w.Message)
	}
}

type stubVocab struct{}

func (stubVocab) Channels() []string { return []string{"App", "Web"} }
func (stubVocab) AllowedTags(c TagCategory) []string {
	if c == ProductTags {
		return []string{"Handset"}
	}
	return nil
}
func (stubVocab) RuleSchema() *rules.Schema { return rules.DefaultSchema() }

func TestLint(t *testing.T) {
	c := &Card{
		Metadata: &Metadata{Channel: StringList{"App", "Kiosk"}},
		Tags:     &Tags{Product: StringList{"Handset", "Toaster"}},
		EligibilityRules: rules.Tree{
			&rules.Leaf{Field: "contract_end_date", Qualifier: "weeks_until", Operator: "<", Value: "3"},
		},
		ContentVariants: []ContentVariant{{WebURL: "example.com"}},
	}
	issues := Lint(c, stubVocab{})
	fields := make([]string, len(issues))
	for i, is := range issues {
		fields[i] = is.Field
	}
	want := []string{"metadata.channel", "tags.product", "eligibilityRules.root_0", "contentVariants.webUrl"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("issue fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ScalarDrift(t *testing.T) {
	in := `{"actionCardId":1234,"name":"Upgrade","enabled":"false","notes":["a","b"],` +
		`"metadata":{"location":7,"channel":"App"},` +
		`"contentVariants":{"title":"Hi","body":42}}`
	c, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.ActionCardID != "1234" {
		t.Errorf("actionCardId = %q, want %q", c.ActionCardID, "1234")
	}
	if c.IsEnabled() {
		t.Error("enabled = true, want false")
	}
	if c.Notes != "a\nb" {
		t.Errorf("notes = %q, want %q", c.Notes, "a\nb")
	}
	if c.Metadata.Location != "7" {
		t.Errorf("metadata.location = %q, want %q", c.Metadata.Location, "7")
	}
	want := []ContentVariant{{Title: "Hi", Body: "42"}}
	if diff := cmp.Diff(want, c.ContentVariants); diff != "" {
		t.Errorf("contentVariants (-want +got):\n%s", diff)
	}
}

func TestDecode_EnabledForms(t *testing.T) {
	cases := map[string]bool{`true`: true, `"true"`: true, `"Yes"`: true, `1`: true, `false`: false, `"false"`: false, `0`: false}
	for in, want := range cases {
		c, err := Decode([]byte(`{"enabled":` + in + `}`))
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if c.Enabled == nil || *c.Enabled != want {
			t.Errorf("enabled %s = %v, want %v", in, c.Enabled, want)
		}
	}
	c, err := Decode([]byte(`{"enabled":"maybe"}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Enabled != nil {
		t.Errorf("enabled = %v, want unset", *c.Enabled)
	}
}

func TestDecode_RejectsNonObject(t *testing.T) {
	if _, err := Decode([]byte(`[1,2]`)); err == nil {
		t.Error("expected error for array document")
	}
}

func TestMarshal_KeepsUnknownKeys(t *testing.T) {
	c, err := Decode([]byte(`{"name":"n","zeta":{"a":1},"alpha":[true]}`))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(c.Clone())
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.HasSuffix(s, `,"alpha":[true],"zeta":{"a":1}}`) {
		t.Errorf("json = %s, want unknown keys appended in order", s)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != "n" || len(back.Extra) != 2 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	c := &Card{
		Name: "U&R <Home>",
		Tags: &Tags{Product: StringList{"U&R Home"}},
		EligibilityRules: rules.Tree{
			&rules.Leaf{Field: "tenure_months", Operator: "<=", Value: "3"},
		},
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"U&R <Home>"`, `["U&R Home"]`, `"operator":"<="`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("json %s missing %s", buf.String(), want)
		}
	}
}
