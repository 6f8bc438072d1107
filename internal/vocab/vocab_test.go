package vocab

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/rules"
)

func TestDefault_MatchesBuiltInSchema(t *testing.T) {
	c := Default()
	want := rules.DefaultSchema().FieldNames()
	got := c.RuleSchema().FieldNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("fields = %v, want %v", got, want)
	}
	if len(c.Channels()) != 4 {
		t.Errorf("channels = %v", c.Channels())
	}
	for _, cat := range card.TagCategories {
		if len(c.AllowedTags(cat)) == 0 {
			t.Errorf("category %s has no allowed tags", cat)
		}
	}
	if c.TagLabel(card.LifeStageTags) != "Life Stage Tags" {
		t.Errorf("label = %q", c.TagLabel(card.LifeStageTags))
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no channels":      "channels: []\nrule_fields: [{name: a, type: number}]\n",
		"missing category": "channels: [App]\ntags: {}\nrule_fields: [{name: a, type: number}]\n",
		"bad type": "channels: [App]\ntags: {product: {}, life_stage: {}, intent: {}, business_label: {}}\n" +
			"rule_fields: [{name: a, type: date}]\n",
		"enum without options": "channels: [App]\ntags: {product: {}, life_stage: {}, intent: {}, business_label: {}}\n" +
			"rule_fields: [{name: a, type: enum}]\n",
		"duplicate": "channels: [App]\ntags: {product: {}, life_stage: {}, intent: {}, business_label: {}}\n" +
			"rule_fields: [{name: a, type: number}, {name: a, type: boolean}]\n",
	}
	for name, in := range cases {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

const customYAML = `channels: [App]
tags:
  product: {label: Products, allowed: [Widget]}
  life_stage: {allowed: [New]}
  intent: {allowed: [Sell]}
  business_label: {allowed: [Ops]}
rule_fields:
  - {name: tenure_months, type: number}
`

func TestStore_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	if err := os.WriteFile(path, []byte(customYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if !s.Current().RuleSchema().Known("tenure_months") {
		t.Error("custom field not loaded")
	}

	// A broken file keeps the previous catalog.
	if err := os.WriteFile(path, []byte("channels: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err == nil {
		t.Error("reload of broken file should fail")
	}
	if s.Current().TagLabel(card.ProductTags) != "Products" {
		t.Error("previous catalog lost after failed reload")
	}
}

func TestStore_WatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	if err := os.WriteFile(path, []byte(customYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan struct{})
	go func() {
		_ = s.Watch(ctx, logger)
		close(done)
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(customYAML, "[App]", "[App, Web]", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Current().Channels()) == 2 {
			cancel()
			<-done
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the catalog")
}

func TestNewStore_DefaultWhenNoPath(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Current() == nil || !s.Current().RuleSchema().Known("device_android") {
		t.Error("default catalog not active")
	}
	if err := s.Reload(); err != nil {
		t.Errorf("Reload without path = %v", err)
	}
}

const customTOML = `channels = ["App", "Web"]

[tags.product]
label = "Products"
allowed = ["Widget"]

[tags.life_stage]
allowed = ["New"]

[tags.intent]
allowed = ["Sell"]

[tags.business_label]
allowed = ["Ops"]

[[rule_fields]]
name = "tenure_months"
type = "number"

[[rule_fields]]
name = "segment"
type = "enum"
options = ["retail", "business"]
`

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.toml")
	if err := os.WriteFile(path, []byte(customTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(c.Channels()); got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}
	if got := c.TagLabel(card.ProductTags); got != "Products" {
		t.Errorf("product label = %q, want %q", got, "Products")
	}
	if !c.RuleSchema().Known("segment") {
		t.Error("segment field not loaded")
	}
}

func TestParseTOML_UnknownKey(t *testing.T) {
	if _, err := ParseTOML([]byte("extra = 1\n" + customTOML)); err == nil {
		t.Error("expected error for unknown key")
	}
}
