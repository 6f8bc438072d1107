package form

import (
	"github.com/starford/cardsmith/internal/card"
)

// Render builds the editor for c. The card is not modified: defaults are
// filled on a copy. Channel and tag values outside the vocabulary are left
// out of the selection and reported as warnings.
func Render(cat Catalog, c *card.Card) View {
	cp := c.Clone()
	card.EnsureDefaults(cp)

	var warnings []card.Warning
	multi := func(key, label, warnLabel string, options, values []string) MultiSelect {
		valid, invalid := card.FilterAllowed(values, options)
		if len(invalid) > 0 {
			warnings = append(warnings, card.IgnoredWarning(key, warnLabel, invalid))
		}
		return MultiSelect{Key: key, Label: label, Options: options, Selected: valid}
	}

	m := cp.Metadata
	d := Details{
		Name:         TextField{Key: "name", Label: "Name", Value: cp.Name},
		ActionCardID: TextField{Key: "actionCardId", Label: "Action Card ID", Value: cp.ActionCardID},
		Description:  TextField{Key: "description", Label: "Description", Value: cp.Description, Multiline: true},
		Enabled:      Checkbox{Key: "enabled", Label: "Enabled", Checked: cp.IsEnabled()},
		Metadata: []TextField{
			{Key: "metadata.manufacturer", Label: "Manufacturer", Value: m.Manufacturer},
			{Key: "metadata.location", Label: "Location", Value: m.Location},
			{Key: "metadata.productType", Label: "Product Type", Value: m.ProductType},
			{Key: "metadata.activeState", Label: "Active State", Value: m.ActiveState},
		},
	}
	d.MetadataChannel = multi("metadata.channel", "Channels", "channels", cat.Channels(), m.Channel)
	for _, tc := range card.TagCategories {
		label := cat.TagLabel(tc)
		d.Tags = append(d.Tags, multi("tags."+string(tc), label, label, cat.AllowedTags(tc), cp.Tags.Get(tc)))
	}
	d.SectionLocation = TextField{Key: "sections.location", Label: "Section Location", Value: cp.Sections.Location}
	d.SectionChannel = multi("sections.channel", "Section Channels", "section channels", cat.Channels(), cp.Sections.Channel)

	cv := cp.ContentVariants[0]
	content := []TextField{
		{Key: "content.deviceFeature", Label: "Device Feature", Value: cv.DeviceFeature},
		{Key: "content.body", Label: "Body", Value: cv.Body, Multiline: true},
		{Key: "content.title", Label: "Title", Value: cv.Title},
		{Key: "content.ctaText", Label: "CTA Text", Value: cv.CTAText},
		{Key: "content.appDeepLink", Label: "App Deep Link", Value: cv.AppDeepLink},
		{Key: "content.webUrl", Label: "Web URL", Value: cv.WebURL},
	}

	return View{
		Tabs:     Tabs,
		Details:  d,
		Rules:    cat.RuleSchema().RenderTree(cp.EligibilityRules),
		Content:  content,
		Warnings: warnings,
	}
}
