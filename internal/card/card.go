// Package card defines the Action Card document produced from one
// spreadsheet row and edited through the card form.
package card

import (
	"encoding/json"

	"github.com/starford/cardsmith/internal/rules"
)

// Card is one customer-facing promotional action and its eligibility logic.
type Card struct {
	ActionCardID     string           `json:"actionCardId"`
	Name             string           `json:"name"`
	Category         string           `json:"category,omitempty"`
	Description      string           `json:"description"`
	Enabled          *bool            `json:"enabled,omitempty"`
	Metadata         *Metadata        `json:"metadata,omitempty"`
	Tags             *Tags            `json:"tags,omitempty"`
	Sections         *Sections        `json:"sections,omitempty"`
	EligibilityRules rules.Tree       `json:"eligibilityRules"`
	ContentVariants  []ContentVariant `json:"contentVariants,omitempty"`
	Notes            string           `json:"notes,omitempty"`

	// Extra holds members of the source document the card does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// Metadata describes where and how the card is shown.
type Metadata struct {
	Manufacturer string     `json:"manufacturer"`
	Location     string     `json:"location"`
	ProductType  string     `json:"productType"`
	ActiveState  string     `json:"activeState"`
	Channel      StringList `json:"channel"`
}

// Tags holds the four tag categories.
type Tags struct {
	Product       StringList `json:"Product Tags"`
	LifeStage     StringList `json:"Life Stage Tags"`
	Intent        StringList `json:"Intent Tags"`
	BusinessLabel StringList `json:"Business Label Tags"`
}

// Sections places the card on a page.
type Sections struct {
	Location string     `json:"location"`
	Channel  StringList `json:"channel"`
}

// ContentVariant is a per-channel/device presentation payload.
type ContentVariant struct {
	DeviceFeature string `json:"deviceFeature"`
	Body          string `json:"body"`
	Title         string `json:"title"`
	CTAText       string `json:"ctaText"`
	AppDeepLink   string `json:"appDeepLink"`
	WebURL        string `json:"webUrl"`
}

// TagCategory names one of the four tag lists.
type TagCategory string

// Tag categories.
const (
	ProductTags       TagCategory = "product"
	LifeStageTags     TagCategory = "life_stage"
	IntentTags        TagCategory = "intent"
	BusinessLabelTags TagCategory = "business_label"
)

// TagCategories lists the categories in display order.
var TagCategories = []TagCategory{ProductTags, LifeStageTags, IntentTags, BusinessLabelTags}

// Get returns the list for c.
func (t *Tags) Get(c TagCategory) []string {
	switch c {
	case ProductTags:
		return t.Product
	case LifeStageTags:
		return t.LifeStage
	case IntentTags:
		return t.Intent
	case BusinessLabelTags:
		return t.BusinessLabel
	}
	return nil
}

// Set replaces the list for c.
func (t *Tags) Set(c TagCategory, v []string) {
	switch c {
	case ProductTags:
		t.Product = v
	case LifeStageTags:
		t.LifeStage = v
	case IntentTags:
		t.Intent = v
	case BusinessLabelTags:
		t.BusinessLabel = v
	}
}

// IsEnabled reports the enabled flag, which defaults to true.
func (c *Card) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	out := *c
	if c.Enabled != nil {
		v := *c.Enabled
		out.Enabled = &v
	}
	if c.Metadata != nil {
		m := *c.Metadata
		m.Channel = cloneList(c.Metadata.Channel)
		out.Metadata = &m
	}
	if c.Tags != nil {
		t := Tags{}
		for _, cat := range TagCategories {
			t.Set(cat, cloneList(c.Tags.Get(cat)))
		}
		out.Tags = &t
	}
	if c.Sections != nil {
		s := *c.Sections
		s.Channel = cloneList(c.Sections.Channel)
		out.Sections = &s
	}
	out.EligibilityRules = c.EligibilityRules.Clone()
	if c.ContentVariants != nil {
		out.ContentVariants = append([]ContentVariant{}, c.ContentVariants...)
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &out
}

func cloneList(in []string) StringList {
	if in == nil {
		return nil
	}
	return append(StringList{}, in...)
}

// Decode reads a card from JSON.
func Decode(data []byte) (*Card, error) {
	var c Card
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
