package card

import (
	"errors"
	"regexp"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsmith/internal/rules"
)

var webURLRe = regexp.MustCompile(`^https?://\S+$`)

// Vocabulary supplies the allowed values a card is checked against.
type Vocabulary interface {
	Channels() []string
	AllowedTags(TagCategory) []string
	RuleSchema() *rules.Schema
}

// Issue is one lint finding. Lint findings never block editing or export.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Lint reports disallowed channels and tags, rule tree violations and
// malformed content links.
func Lint(c *Card, v Vocabulary) []Issue {
	var issues []Issue

	if c.Metadata != nil {
		if _, bad := FilterAllowed(c.Metadata.Channel, v.Channels()); len(bad) > 0 {
			issues = append(issues, Issue{Field: "metadata.channel", Message: IgnoredWarning("", "channels", bad).Message})
		}
	}
	if c.Sections != nil {
		if _, bad := FilterAllowed(c.Sections.Channel, v.Channels()); len(bad) > 0 {
			issues = append(issues, Issue{Field: "sections.channel", Message: IgnoredWarning("", "channels", bad).Message})
		}
	}
	if c.Tags != nil {
		for _, cat := range TagCategories {
			if _, bad := FilterAllowed(c.Tags.Get(cat), v.AllowedTags(cat)); len(bad) > 0 {
				issues = append(issues, Issue{Field: "tags." + string(cat), Message: IgnoredWarning("", "tags", bad).Message})
			}
		}
	}
	for _, ri := range v.RuleSchema().Validate(c.EligibilityRules) {
		issues = append(issues, Issue{Field: "eligibilityRules." + ri.Key, Message: ri.Message})
	}
	for i := range c.ContentVariants {
		if err := c.ContentVariants[i].Validate(); err != nil {
			issues = append(issues, fieldIssues("contentVariants", err)...)
		}
	}
	return issues
}

// Validate checks the variant's links.
func (cv *ContentVariant) Validate() error {
	return validation.ValidateStruct(cv,
		validation.Field(&cv.WebURL, validation.Match(webURLRe).Error("must be an http(s) URL")),
	)
}

func fieldIssues(prefix string, err error) []Issue {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []Issue{{Field: prefix, Message: err.Error()}}
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Issue, 0, len(keys))
	for _, k := range keys {
		out = append(out, Issue{Field: prefix + "." + k, Message: verrs[k].Error()})
	}
	return out
}
