// Package form renders an action card as editable form controls and applies
// submitted form input back onto the card.
package form

import (
	"net/url"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/rules"
)

// Catalog is the vocabulary the form is built from.
type Catalog interface {
	card.Vocabulary
	TagLabel(card.TagCategory) string
}

// Tab identifiers.
const (
	TabDetails  = "details"
	TabRules    = "rules"
	TabContent  = "content"
	ActionKey   = "action"
	emptyMarker = ""
)

// Tab is one page of the editor.
type Tab struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Tabs lists the editor pages in display order.
var Tabs = []Tab{
	{ID: TabDetails, Label: "Action Details"},
	{ID: TabRules, Label: "Business Rules"},
	{ID: TabContent, Label: "Content Variants"},
}

// TextField is a single-line or multi-line text control.
type TextField struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Value     string `json:"value"`
	Multiline bool   `json:"multiline,omitempty"`
}

// Checkbox is a boolean control.
type Checkbox struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// MultiSelect is a multi-value control restricted to Options.
type MultiSelect struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Options  []string `json:"options"`
	Selected []string `json:"selected"`
}

// Details is the Action Details tab.
type Details struct {
	Name            TextField     `json:"name"`
	ActionCardID    TextField     `json:"actionCardId"`
	Description     TextField     `json:"description"`
	Enabled         Checkbox      `json:"enabled"`
	Metadata        []TextField   `json:"metadata"`
	MetadataChannel MultiSelect   `json:"metadataChannel"`
	Tags            []MultiSelect `json:"tags"`
	SectionLocation TextField     `json:"sectionLocation"`
	SectionChannel  MultiSelect   `json:"sectionChannel"`
}

// View is the rendered editor for one card.
type View struct {
	Tabs     []Tab          `json:"tabs"`
	Details  Details        `json:"details"`
	Rules    rules.TreeView `json:"rules"`
	Content  []TextField    `json:"content"`
	Warnings []card.Warning `json:"warnings,omitempty"`
}

// Values encodes the rendered defaults as form input, exactly as a browser
// would submit the untouched form.
func (v View) Values() url.Values {
	out := url.Values{}
	d := v.Details
	for _, f := range []TextField{d.Name, d.ActionCardID, d.Description, d.SectionLocation} {
		out.Set(f.Key, f.Value)
	}
	for _, f := range d.Metadata {
		out.Set(f.Key, f.Value)
	}
	putCheckbox(out, d.Enabled.Key, d.Enabled.Checked)
	putMulti(out, d.MetadataChannel)
	putMulti(out, d.SectionChannel)
	for _, m := range d.Tags {
		putMulti(out, m)
	}
	putNodes(out, v.Rules.Nodes)
	for _, f := range v.Content {
		out.Set(f.Key, f.Value)
	}
	return out
}

// putCheckbox mirrors a hidden "false" input followed by a "true" checkbox.
func putCheckbox(out url.Values, key string, checked bool) {
	out.Add(key, "false")
	if checked {
		out.Add(key, "true")
	}
}

// putMulti mirrors a hidden empty marker followed by the selected options.
func putMulti(out url.Values, m MultiSelect) {
	out.Add(m.Key, emptyMarker)
	for _, s := range m.Selected {
		out.Add(m.Key, s)
	}
}

func putNodes(out url.Values, nodes []rules.NodeView) {
	for _, n := range nodes {
		switch {
		case n.Group != nil:
			out.Set(n.Key+".conj", string(n.Group.Conjunction))
			putNodes(out, n.Group.Children)
		case n.Leaf != nil:
			l := n.Leaf
			out.Set(n.Key+".field", l.Field)
			if len(l.Qualifiers) > 0 {
				out.Set(n.Key+".qual", l.Qualifier)
			}
			out.Set(n.Key+".op", l.Operator)
			if l.ValueKind == rules.ControlCheckbox {
				putCheckbox(out, n.Key+".val", l.Value == "true")
			} else {
				out.Set(n.Key+".val", l.Value)
			}
		}
	}
}
