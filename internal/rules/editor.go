package rules

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrBadPath is returned when an event addresses a node that does not exist
// or has the wrong kind.
var ErrBadPath = errors.New("rules: bad path")

// Path addresses a node by child indices from the top-level list.
// The empty path addresses the top level itself.
type Path []int

// String renders the path as a control key, e.g. "root_0_2".
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("root")
	for _, i := range p {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

// ParsePath is the inverse of Path.String.
func ParsePath(key string) (Path, error) {
	parts := strings.Split(key, "_")
	if len(parts) == 0 || parts[0] != "root" {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, key)
	}
	out := make(Path, 0, len(parts)-1)
	for _, s := range parts[1:] {
		i, err := strconv.Atoi(s)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, key)
		}
		out = append(out, i)
	}
	return out, nil
}

// Event is one edit applied by Reduce.
type Event interface {
	target() Path
}

// SetConjunction changes a group's conjunction.
type SetConjunction struct {
	Path        Path
	Conjunction Conjunction
}

// SetField changes a leaf's field and re-fits its qualifier and value.
type SetField struct {
	Path  Path
	Field string
}

// SetQualifier changes a leaf's qualifier.
type SetQualifier struct {
	Path      Path
	Qualifier string
}

// SetOperator changes a leaf's operator.
type SetOperator struct {
	Path     Path
	Operator string
}

// SetValue changes a leaf's value.
type SetValue struct {
	Path  Path
	Value string
}

// AddRule appends a default leaf to the top level (empty path) or a group.
type AddRule struct {
	Path Path
}

// AddGroup appends an empty AND group to the top level or a group.
type AddGroup struct {
	Path Path
}

func (e SetConjunction) target() Path { return e.Path }
func (e SetField) target() Path       { return e.Path }
func (e SetQualifier) target() Path   { return e.Path }
func (e SetOperator) target() Path    { return e.Path }
func (e SetValue) target() Path       { return e.Path }
func (e AddRule) target() Path        { return e.Path }
func (e AddGroup) target() Path       { return e.Path }

// NewRule returns the leaf appended by AddRule.
func (s *Schema) NewRule() *Leaf {
	return &Leaf{Field: s.First().Name, Operator: "=", Value: ""}
}

// Reduce applies ev to a copy of tree and returns the copy. The input tree
// is never modified. Individual nodes cannot be removed.
func (s *Schema) Reduce(tree Tree, ev Event) (Tree, error) {
	out := tree.Clone()
	if out == nil {
		out = Tree{}
	}

	switch e := ev.(type) {
	case AddRule:
		return s.appendAt(out, e.Path, s.NewRule())
	case AddGroup:
		return s.appendAt(out, e.Path, NewGroup(And))
	case SetConjunction:
		if !e.Conjunction.Valid() {
			return nil, fmt.Errorf("rules: invalid conjunction %q", e.Conjunction)
		}
		g, err := groupAt(out, e.Path)
		if err != nil {
			return nil, err
		}
		g.Conjunction = e.Conjunction
	case SetField:
		f, ok := s.Lookup(e.Field)
		if !ok {
			return nil, fmt.Errorf("rules: unknown field %q", e.Field)
		}
		l, err := leafAt(out, e.Path)
		if err != nil {
			return nil, err
		}
		l.Field = f.Name
		if !f.AllowsQualifier(l.Qualifier) {
			l.Qualifier = ""
			if len(f.Qualifiers) > 0 {
				l.Qualifier = f.Qualifiers[0]
			}
		}
		l.Value = f.CoerceValue(l.Value)
	case SetQualifier:
		l, err := leafAt(out, e.Path)
		if err != nil {
			return nil, err
		}
		f, _ := s.Lookup(l.Field)
		if e.Qualifier != "" && !f.AllowsQualifier(e.Qualifier) {
			return nil, fmt.Errorf("rules: qualifier %q not allowed for %s", e.Qualifier, l.Field)
		}
		l.Qualifier = e.Qualifier
	case SetOperator:
		if !IsOperator(e.Operator) {
			return nil, fmt.Errorf("rules: invalid operator %q", e.Operator)
		}
		l, err := leafAt(out, e.Path)
		if err != nil {
			return nil, err
		}
		l.Operator = e.Operator
	case SetValue:
		l, err := leafAt(out, e.Path)
		if err != nil {
			return nil, err
		}
		if f, ok := s.Lookup(l.Field); ok {
			if choices := f.ValueChoices(); choices != nil && !slices.Contains(choices, e.Value) {
				return nil, fmt.Errorf("rules: value %q not allowed for %s", e.Value, l.Field)
			}
		}
		l.Value = e.Value
	default:
		return nil, fmt.Errorf("rules: unsupported event %T", ev)
	}
	return out, nil
}

func (s *Schema) appendAt(tree Tree, p Path, n Node) (Tree, error) {
	if len(p) == 0 {
		return append(tree, n), nil
	}
	g, err := groupAt(tree, p)
	if err != nil {
		return nil, err
	}
	g.Rules = append(g.Rules, n)
	return tree, nil
}

// nodeAt walks p from the top-level list.
func nodeAt(tree Tree, p Path) (Node, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrBadPath)
	}
	level := []Node(tree)
	var n Node
	for depth, i := range p {
		if i < 0 || i >= len(level) {
			return nil, fmt.Errorf("%w: %s", ErrBadPath, p)
		}
		n = level[i]
		if depth == len(p)-1 {
			break
		}
		g, ok := n.(*Group)
		if !ok {
			return nil, fmt.Errorf("%w: %s crosses a rule", ErrBadPath, p)
		}
		level = g.Rules
	}
	return n, nil
}

func groupAt(tree Tree, p Path) (*Group, error) {
	n, err := nodeAt(tree, p)
	if err != nil {
		return nil, err
	}
	g, ok := n.(*Group)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a group", ErrBadPath, p)
	}
	return g, nil
}

func leafAt(tree Tree, p Path) (*Leaf, error) {
	n, err := nodeAt(tree, p)
	if err != nil {
		return nil, err
	}
	l, ok := n.(*Leaf)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a rule", ErrBadPath, p)
	}
	return l, nil
}

// Normalize returns the tree as its rendered controls would report it:
// unknown fields fall back to the first field, qualifiers and values are
// fitted to the field and invalid operators become "=". A tree that already
// satisfies the schema is returned unchanged (as a copy).
func (s *Schema) Normalize(tree Tree) Tree {
	out := tree.Clone()
	for _, n := range out {
		s.normalizeNode(n)
	}
	return out
}

func (s *Schema) normalizeNode(n Node) {
	switch v := n.(type) {
	case *Group:
		if !v.Conjunction.Valid() {
			v.Conjunction = And
		}
		if v.Rules == nil {
			v.Rules = []Node{}
		}
		for _, c := range v.Rules {
			s.normalizeNode(c)
		}
	case *Leaf:
		f, ok := s.Lookup(v.Field)
		if !ok {
			f = s.First()
			v.Field = f.Name
		}
		switch {
		case len(f.Qualifiers) == 0:
			v.Qualifier = ""
		case !f.AllowsQualifier(v.Qualifier):
			v.Qualifier = f.Qualifiers[0]
		}
		if !IsOperator(v.Operator) {
			v.Operator = "="
		}
		v.Value = f.CoerceValue(v.Value)
	}
}
