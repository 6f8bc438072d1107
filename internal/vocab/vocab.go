// Package vocab holds the allowed channels, tag vocabularies and rule field
// schema that cards are rendered and checked against.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/rules"
)

//go:embed default.yaml
var defaultYAML []byte

// TagVocabulary is the allowed set of one tag category.
type TagVocabulary struct {
	Label   string   `yaml:"label" toml:"label" json:"label"`
	Allowed []string `yaml:"allowed" toml:"allowed" json:"allowed"`
}

// Catalog is an immutable vocabulary snapshot.
type Catalog struct {
	ChannelList []string                           `yaml:"channels" toml:"channels" json:"channels"`
	Tags        map[card.TagCategory]TagVocabulary `yaml:"tags" toml:"tags" json:"tags"`
	RuleFields  []rules.Field                      `yaml:"rule_fields" toml:"rule_fields" json:"ruleFields"`

	schema *rules.Schema
}

var _ card.Vocabulary = (*Catalog)(nil)

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("vocab: embedded default: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file, or TOML when the file name ends in
// ".toml".
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseTOML
	}
	c, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("vocab: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return c.finish()
}

// ParseTOML decodes and validates a TOML catalog.
func ParseTOML(data []byte) (*Catalog, error) {
	var c Catalog
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse toml: unknown key %q", undecoded[0].String())
	}
	return c.finish()
}

func (c *Catalog) finish() (*Catalog, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.schema = &rules.Schema{Fields: c.RuleFields}
	return c, nil
}

// Validate validates the catalog.
func (c *Catalog) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ChannelList, validation.Required),
		validation.Field(&c.RuleFields, validation.Required),
	); err != nil {
		return err
	}
	for _, cat := range card.TagCategories {
		if _, ok := c.Tags[cat]; !ok {
			return fmt.Errorf("tags: missing category %q", cat)
		}
	}
	seen := make(map[string]struct{}, len(c.RuleFields))
	for i := range c.RuleFields {
		f := &c.RuleFields[i]
		if err := validation.ValidateStruct(f,
			validation.Field(&f.Name, validation.Required),
			validation.Field(&f.Type, validation.Required, validation.In(rules.FieldEnum, rules.FieldNumber, rules.FieldBoolean)),
			validation.Field(&f.Options, validation.When(f.Type == rules.FieldEnum, validation.Required)),
		); err != nil {
			return fmt.Errorf("rule_fields[%d]: %w", i, err)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("rule_fields[%d]: duplicate field %q", i, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Channels returns the allowed channel values.
func (c *Catalog) Channels() []string {
	return c.ChannelList
}

// AllowedTags returns the allowed values of a tag category.
func (c *Catalog) AllowedTags(cat card.TagCategory) []string {
	return c.Tags[cat].Allowed
}

// TagLabel returns the display label of a tag category.
func (c *Catalog) TagLabel(cat card.TagCategory) string {
	if v, ok := c.Tags[cat]; ok && v.Label != "" {
		return v.Label
	}
	return string(cat)
}

// RuleSchema returns the rule field schema.
func (c *Catalog) RuleSchema() *rules.Schema {
	return c.schema
}
