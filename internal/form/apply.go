package form

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/rules"
)

// Apply writes submitted values into a copy of c and returns it. Keys
// absent from input leave the corresponding field unchanged. Submitted
// channels and tags outside the vocabulary are dropped with a warning. An
// "action" key of the form add_rule:<key>, add_group:<key>, <key>_add_rule
// or <key>_add_group appends to the addressed level after the edits.
// Only the first content variant is kept.
func Apply(cat Catalog, c *card.Card, input url.Values) (*card.Card, []card.Warning, error) {
	out := c.Clone()
	card.EnsureDefaults(out)
	var warnings []card.Warning

	setText(input, "name", &out.Name)
	setText(input, "actionCardId", &out.ActionCardID)
	setText(input, "description", &out.Description)
	if v, ok := lastValue(input, "enabled"); ok {
		enabled := v == "true"
		out.Enabled = &enabled
	}

	setText(input, "metadata.manufacturer", &out.Metadata.Manufacturer)
	setText(input, "metadata.location", &out.Metadata.Location)
	setText(input, "metadata.productType", &out.Metadata.ProductType)
	setText(input, "metadata.activeState", &out.Metadata.ActiveState)

	multi := func(key, label string, allowed []string, dst *card.StringList) {
		vals, ok := input[key]
		if !ok {
			return
		}
		valid, invalid := card.FilterAllowed(nonEmpty(vals), allowed)
		if len(invalid) > 0 {
			warnings = append(warnings, card.IgnoredWarning(key, label, invalid))
		}
		*dst = valid
	}
	multi("metadata.channel", "channels", cat.Channels(), &out.Metadata.Channel)
	for _, tc := range card.TagCategories {
		list := card.StringList(out.Tags.Get(tc))
		multi("tags."+string(tc), cat.TagLabel(tc), cat.AllowedTags(tc), &list)
		out.Tags.Set(tc, list)
	}
	setText(input, "sections.location", &out.Sections.Location)
	multi("sections.channel", "section channels", cat.Channels(), &out.Sections.Channel)

	cv := out.ContentVariants[0]
	setText(input, "content.deviceFeature", &cv.DeviceFeature)
	setText(input, "content.body", &cv.Body)
	setText(input, "content.title", &cv.Title)
	setText(input, "content.ctaText", &cv.CTAText)
	setText(input, "content.appDeepLink", &cv.AppDeepLink)
	setText(input, "content.webUrl", &cv.WebURL)
	out.ContentVariants = []card.ContentVariant{cv}

	schema := cat.RuleSchema()
	tree, err := applyRules(schema, out.EligibilityRules, input)
	if err != nil {
		return nil, nil, err
	}
	if action := input.Get(ActionKey); action != "" {
		ev, err := parseAction(action)
		if err != nil {
			return nil, nil, err
		}
		if tree, err = schema.Reduce(tree, ev); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
	}
	out.EligibilityRules = tree
	return out, warnings, nil
}

// applyRules reads rule controls by key while walking the normalized tree.
// A changed field re-fits the leaf, so that leaf's qualifier and value
// controls, which belonged to the previous field, are ignored.
func applyRules(schema *rules.Schema, current rules.Tree, input url.Values) (rules.Tree, error) {
	tree := schema.Normalize(current)
	var events []rules.Event

	var walk func(nodes []rules.Node, parent rules.Path)
	walk = func(nodes []rules.Node, parent rules.Path) {
		for i, n := range nodes {
			p := append(append(rules.Path{}, parent...), i)
			key := p.String()
			switch v := n.(type) {
			case *rules.Group:
				if c, ok := firstValue(input, key+".conj"); ok && rules.Conjunction(c) != v.Conjunction {
					events = append(events, rules.SetConjunction{Path: p, Conjunction: rules.Conjunction(c)})
				}
				walk(v.Rules, p)
			case *rules.Leaf:
				if f, ok := firstValue(input, key+".field"); ok && f != v.Field {
					events = append(events, rules.SetField{Path: p, Field: f})
					if op, ok := firstValue(input, key+".op"); ok && op != v.Operator {
						events = append(events, rules.SetOperator{Path: p, Operator: op})
					}
					continue
				}
				if q, ok := firstValue(input, key+".qual"); ok && q != v.Qualifier {
					events = append(events, rules.SetQualifier{Path: p, Qualifier: q})
				}
				if op, ok := firstValue(input, key+".op"); ok && op != v.Operator {
					events = append(events, rules.SetOperator{Path: p, Operator: op})
				}
				if val, ok := lastValue(input, key+".val"); ok && val != v.Value {
					events = append(events, rules.SetValue{Path: p, Value: val})
				}
			}
		}
	}
	walk(tree, nil)
	if len(events) == 0 {
		return current, nil
	}

	for _, ev := range events {
		next, err := schema.Reduce(tree, ev)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		tree = next
	}
	return tree, nil
}

// parseAction decodes an add-button submission into a reducer event.
func parseAction(action string) (rules.Event, error) {
	var kind, key string
	switch {
	case strings.HasPrefix(action, "add_rule:"):
		kind, key = "rule", strings.TrimPrefix(action, "add_rule:")
	case strings.HasPrefix(action, "add_group:"):
		kind, key = "group", strings.TrimPrefix(action, "add_group:")
	case strings.HasSuffix(action, "_add_rule"):
		kind, key = "rule", strings.TrimSuffix(action, "_add_rule")
	case strings.HasSuffix(action, "_add_group"):
		kind, key = "group", strings.TrimSuffix(action, "_add_group")
	default:
		return nil, fmt.Errorf("%w: unknown action %q", apperr.ErrInvalidInput, action)
	}
	p, err := rules.ParsePath(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if kind == "rule" {
		return rules.AddRule{Path: p}, nil
	}
	return rules.AddGroup{Path: p}, nil
}

func setText(input url.Values, key string, dst *string) {
	if v, ok := firstValue(input, key); ok {
		*dst = v
	}
}

func firstValue(input url.Values, key string) (string, bool) {
	vals, ok := input[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// lastValue reads checkbox-style keys where a later "true" overrides the
// hidden "false".
func lastValue(input url.Values, key string) (string, bool) {
	vals, ok := input[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

func nonEmpty(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != emptyMarker {
			out = append(out, v)
		}
	}
	return out
}
