package form

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/vocab"
)

func validCard() *card.Card {
	return &card.Card{
		ActionCardID: "SALES-1234",
		Name:         "Upgrade Test",
		Category:     "Test Category",
		Description:  "Try the new plan",
		Metadata: &card.Metadata{
			Manufacturer: "Samsung",
			Location:     "HERO",
			ProductType:  "Flex Pay",
			ActiveState:  "Always On",
			Channel:      card.StringList{"App", "Web"},
		},
		Tags: &card.Tags{
			Product:   card.StringList{"Broadband Base Package"},
			LifeStage: card.StringList{"XSell"},
			Intent:    card.StringList{"Sell"},
		},
		EligibilityRules: rules.Tree{
			&rules.Leaf{Field: "upgradeEligibility.eligibilityStatus", Operator: "=", Value: "Y"},
			&rules.Group{Conjunction: rules.Or, Rules: []rules.Node{
				&rules.Leaf{Field: "contract_end_date", Qualifier: "days_until", Operator: "<", Value: "30"},
				&rules.Leaf{Field: "device_android", Operator: "=", Value: "true"},
			}},
		},
		ContentVariants: []card.ContentVariant{{Title: "Upgrade Now", WebURL: "http://example.com"}},
		Notes:           "keep me",
	}
}

func TestRender_DefaultsAndWarnings(t *testing.T) {
	cat := vocab.Default()
	c := &card.Card{
		Name:     "x",
		Metadata: &card.Metadata{Channel: card.StringList{"App", "Fax"}},
		Tags:     &card.Tags{Intent: card.StringList{"Sell", "Bogus"}},
	}
	v := Render(cat, c)

	if diff := cmp.Diff([]string{"App"}, v.Details.MetadataChannel.Selected); diff != "" {
		t.Errorf("channel selection (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"App", "Web"}, v.Details.SectionChannel.Selected); diff != "" {
		t.Errorf("section channels (-want +got):\n%s", diff)
	}
	if !v.Details.Enabled.Checked {
		t.Error("enabled should default to checked")
	}
	if len(v.Warnings) != 2 {
		t.Fatalf("warnings = %+v, want 2", v.Warnings)
	}
	if v.Warnings[0].Message != "Ignored invalid channels: Fax" {
		t.Errorf("warning = %q", v.Warnings[0].Message)
	}
	if v.Warnings[1].Field != "tags.intent" {
		t.Errorf("warning field = %q", v.Warnings[1].Field)
	}
	if len(v.Rules.Nodes) != 1 || v.Rules.Nodes[0].Group == nil || len(v.Rules.Nodes[0].Group.Children) != 0 {
		t.Errorf("absent rules should render one empty group: %+v", v.Rules.Nodes)
	}
	if c.Sections != nil || c.Enabled != nil {
		t.Error("Render modified its input")
	}
	if len(v.Tabs) != 3 {
		t.Errorf("tabs = %d", len(v.Tabs))
	}
}

func TestApply_RoundTripIsEnsureDefaults(t *testing.T) {
	cat := vocab.Default()
	for name, c := range map[string]*card.Card{
		"full":  validCard(),
		"empty": {Name: "bare"},
	} {
		t.Run(name, func(t *testing.T) {
			got, warnings, err := Apply(cat, c, Render(cat, c).Values())
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if len(warnings) != 0 {
				t.Errorf("warnings = %+v", warnings)
			}
			want := c.Clone()
			card.EnsureDefaults(want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApply_AbsentKeysUnchanged(t *testing.T) {
	cat := vocab.Default()
	c := validCard()
	got, _, err := Apply(cat, c, url.Values{"name": {"Renamed"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Description != c.Description || got.Metadata.Manufacturer != "Samsung" {
		t.Error("absent keys changed")
	}
	if diff := cmp.Diff(c.EligibilityRules, got.EligibilityRules); diff != "" {
		t.Errorf("rules changed (-want +got):\n%s", diff)
	}
	if c.Name != "Upgrade Test" {
		t.Error("Apply modified its input")
	}
}

func TestApply_FieldEdits(t *testing.T) {
	cat := vocab.Default()
	in := url.Values{
		"enabled":          {"false"},
		"metadata.channel": {"", "Store", "Fax"},
		"tags.intent":      {""},
		"content.title":    {"New title"},
		"root_1.conj":      {"AND"},
		"root_1_0.qual":    {"days_until"},
		"root_1_0.val":     {"14"},
		"root_1_1.val":     {"false"},
		"root_0.field":     {"device_google"},
		"root_0.val":       {"Y"},
	}
	got, warnings, err := Apply(cat, validCard(), in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.IsEnabled() {
		t.Error("enabled not cleared")
	}
	if diff := cmp.Diff(card.StringList{"Store"}, got.Metadata.Channel); diff != "" {
		t.Errorf("channel (-want +got):\n%s", diff)
	}
	if len(warnings) != 1 || warnings[0].Field != "metadata.channel" {
		t.Errorf("warnings = %+v", warnings)
	}
	if got.Tags.Intent == nil || len(got.Tags.Intent) != 0 {
		t.Errorf("intent tags = %#v, want empty", got.Tags.Intent)
	}
	if got.ContentVariants[0].Title != "New title" || got.ContentVariants[0].WebURL != "http://example.com" {
		t.Errorf("content = %+v", got.ContentVariants[0])
	}
	want := rules.Tree{
		&rules.Leaf{Field: "device_google", Operator: "=", Value: "false"},
		&rules.Group{Conjunction: rules.And, Rules: []rules.Node{
			&rules.Leaf{Field: "contract_end_date", Qualifier: "days_until", Operator: "<", Value: "14"},
			&rules.Leaf{Field: "device_android", Operator: "=", Value: "false"},
		}},
	}
	if diff := cmp.Diff(want, got.EligibilityRules); diff != "" {
		t.Errorf("rules (-want +got):\n%s", diff)
	}
}

func TestApply_AddActions(t *testing.T) {
	cat := vocab.Default()
	got, _, err := Apply(cat, validCard(), url.Values{ActionKey: {"add_rule:root_1"}})
	if err != nil {
		t.Fatal(err)
	}
	g := got.EligibilityRules[1].(*rules.Group)
	if len(g.Rules) != 3 || len(got.EligibilityRules) != 2 {
		t.Errorf("rule not appended at group level: %+v", got.EligibilityRules)
	}

	got, _, err = Apply(cat, validCard(), url.Values{ActionKey: {"root_add_group"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.EligibilityRules) != 3 {
		t.Fatalf("top level = %d nodes, want 3", len(got.EligibilityRules))
	}
	if _, ok := got.EligibilityRules[2].(*rules.Group); !ok {
		t.Errorf("appended node = %T, want group", got.EligibilityRules[2])
	}
}

func TestApply_InvalidInput(t *testing.T) {
	cat := vocab.Default()
	for name, in := range map[string]url.Values{
		"bad operator":   {"root_0.op": {"=~"}},
		"bad enum value": {"root_0.val": {"maybe"}},
		"bad path":       {ActionKey: {"add_rule:root_0"}},
		"bad action":     {ActionKey: {"explode"}},
	} {
		if _, _, err := Apply(cat, validCard(), in); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestApply_DropsExtraVariants(t *testing.T) {
	c := validCard()
	c.ContentVariants = append(c.ContentVariants, card.ContentVariant{Title: "second"})
	got, _, err := Apply(vocab.Default(), c, url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ContentVariants) != 1 || got.ContentVariants[0].Title != "Upgrade Now" {
		t.Errorf("variants = %+v", got.ContentVariants)
	}
}
