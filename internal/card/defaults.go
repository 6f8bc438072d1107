package card

import "github.com/starford/cardsmith/internal/rules"

// DefaultSectionChannels is the section channel selection of a card whose
// sections carry no channel list.
var DefaultSectionChannels = []string{"App", "Web"}

// EnsureDefaults fills in missing sub-objects so a partially populated
// card can be rendered. It only inserts; present values are left as they
// are.
func EnsureDefaults(c *Card) {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Metadata == nil {
		c.Metadata = &Metadata{}
	}
	if c.Metadata.Channel == nil {
		c.Metadata.Channel = StringList{}
	}
	if c.Tags == nil {
		c.Tags = &Tags{}
	}
	for _, cat := range TagCategories {
		if c.Tags.Get(cat) == nil {
			c.Tags.Set(cat, StringList{})
		}
	}
	if c.Sections == nil {
		c.Sections = &Sections{}
	}
	if c.Sections.Channel == nil {
		c.Sections.Channel = append(StringList{}, DefaultSectionChannels...)
	}
	if c.EligibilityRules == nil {
		c.EligibilityRules = rules.DefaultTree()
	}
	if len(c.ContentVariants) == 0 {
		c.ContentVariants = []ContentVariant{{}}
	}
}
