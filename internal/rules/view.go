package rules

import "strconv"

// Control kinds for a leaf's value.
const (
	ControlCheckbox = "checkbox"
	ControlSelect   = "select"
	ControlText     = "text"
)

// NodeView is one rendered row of the rule editor. Exactly one of Group
// and Leaf is set.
type NodeView struct {
	Key   string     `json:"key"`
	Depth int        `json:"depth"`
	Group *GroupView `json:"group,omitempty"`
	Leaf  *LeafView  `json:"leaf,omitempty"`
}

// GroupView renders a group: its conjunction toggle, its children and the
// add controls for its own level.
type GroupView struct {
	Label       string      `json:"label"`
	Conjunction Conjunction `json:"conjunction"`
	Choices     []string    `json:"choices"`
	Children    []NodeView  `json:"children"`
	AddRuleKey  string      `json:"addRuleKey"`
	AddGroupKey string      `json:"addGroupKey"`
}

// LeafView renders the field, qualifier, operator and value controls.
type LeafView struct {
	Field      string   `json:"field"`
	Fields     []string `json:"fields"`
	Qualifier  string   `json:"qualifier,omitempty"`
	Qualifiers []string `json:"qualifiers,omitempty"`
	Operator   string   `json:"operator"`
	Operators  []string `json:"operators"`
	Value      string   `json:"value"`
	ValueKind  string   `json:"valueKind"`
	Options    []string `json:"options,omitempty"`
}

// TreeView is the rendered top level of a rule tree.
type TreeView struct {
	Nodes       []NodeView `json:"nodes"`
	AddRuleKey  string     `json:"addRuleKey"`
	AddGroupKey string     `json:"addGroupKey"`
}

// RenderTree renders the tree depth-first. It is a pure function of its
// inputs; the values shown are those of Normalize(tree).
func (s *Schema) RenderTree(tree Tree) TreeView {
	norm := s.Normalize(tree)
	root := Path{}
	return TreeView{
		Nodes:       s.renderLevel(norm, root, 0),
		AddRuleKey:  root.String() + "_add_rule",
		AddGroupKey: root.String() + "_add_group",
	}
}

func (s *Schema) renderLevel(nodes []Node, parent Path, depth int) []NodeView {
	out := make([]NodeView, 0, len(nodes))
	for i, n := range nodes {
		p := append(append(Path{}, parent...), i)
		key := p.String()
		switch v := n.(type) {
		case *Group:
			out = append(out, NodeView{Key: key, Depth: depth, Group: &GroupView{
				Label:       string(v.Conjunction) + " Group " + strconv.Itoa(i+1),
				Conjunction: v.Conjunction,
				Choices:     []string{string(And), string(Or)},
				Children:    s.renderLevel(v.Rules, p, depth+1),
				AddRuleKey:  key + "_add_rule",
				AddGroupKey: key + "_add_group",
			}})
		case *Leaf:
			f, _ := s.Lookup(v.Field)
			lv := &LeafView{
				Field:      v.Field,
				Fields:     s.FieldNames(),
				Qualifier:  v.Qualifier,
				Qualifiers: f.Qualifiers,
				Operator:   v.Operator,
				Operators:  Operators,
				Value:      v.Value,
				ValueKind:  ControlText,
			}
			switch f.Type {
			case FieldBoolean:
				lv.ValueKind = ControlCheckbox
				lv.Options = f.ValueChoices()
			case FieldEnum:
				lv.ValueKind = ControlSelect
				lv.Options = f.Options
			}
			out = append(out, NodeView{Key: key, Depth: depth, Leaf: lv})
		}
	}
	return out
}
