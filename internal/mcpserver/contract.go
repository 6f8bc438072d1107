package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/vocab"
)

// cardFormatIntro describes the action card document that LLM consumers
// should produce or edit.
const cardFormatIntro = `# Action Card Format

An action card is one JSON object describing a customer-facing promotion
and the eligibility logic that decides who sees it.

## Structure

` + "```" + `json
{
  "actionCardId": "AC-0001",
  "name": "Upgrade Test",
  "description": "Short description",
  "enabled": true,
  "metadata": {
    "manufacturer": "Samsung",
    "location": "Home",
    "productType": "Handset",
    "activeState": "Active",
    "channel": ["App", "Web"]
  },
  "tags": {
    "Product Tags": ["Handset"],
    "Life Stage Tags": ["Upgrade"],
    "Intent Tags": ["Upgrade"],
    "Business Label Tags": ["New Device"]
  },
  "sections": {"location": "Home", "channel": ["App", "Web"]},
  "eligibilityRules": [
    {"type": "rule", "field": "device_android", "operator": "=", "value": "true"},
    {"type": "group", "conjunction": "OR", "rules": [
      {"type": "rule", "field": "contract_end_date", "qualifier": "days_until", "operator": "<", "value": "30"}
    ]}
  ],
  "contentVariants": [
    {"deviceFeature": "", "title": "", "body": "", "ctaText": "", "appDeepLink": "", "webUrl": ""}
  ]
}
` + "```" + `

## Rules

1. **eligibilityRules** is an ordered list. Each entry is either a leaf
   (type "rule": field, optional qualifier, operator, value) or a group
   (type "group": conjunction AND or OR plus nested rules).
2. **Operators** are ` + "`=`, `!=`, `<`, `>`, `<=`, `>=`" + `.
3. **Values** are strings even for numbers and booleans.
4. **Channel and tag values** must come from the vocabulary below; anything
   else is dropped by the editor with a warning.
5. Only the first content variant is editable.
6. A free-text rule such as ` + "`contract_end_date days_until < 30`" + ` can be
   turned into a leaf with the parse_rule tool.
`

// CardFormat returns the card format contract followed by the active
// vocabulary.
func CardFormat(cat *vocab.Catalog) string {
	var b strings.Builder
	b.WriteString(cardFormatIntro)
	b.WriteString("\n## Vocabulary\n\n")
	fmt.Fprintf(&b, "- Channels: %s\n", strings.Join(cat.Channels(), ", "))
	for _, tc := range card.TagCategories {
		fmt.Fprintf(&b, "- %s: %s\n", cat.TagLabel(tc), strings.Join(cat.AllowedTags(tc), ", "))
	}
	b.WriteString("\n## Rule fields\n\n")
	for _, f := range cat.RuleFields {
		fmt.Fprintf(&b, "- `%s` (%s)", f.Name, f.Type)
		if len(f.Qualifiers) > 0 {
			fmt.Fprintf(&b, " qualifiers: %s", strings.Join(f.Qualifiers, ", "))
		}
		if len(f.Options) > 0 {
			fmt.Fprintf(&b, " values: %s", strings.Join(f.Options, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
