package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/starford/cardsmith/internal/jsonenc"
)

// Conjunction joins the children of a group.
type Conjunction string

// Conjunctions.
const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// Conjunctions lists the conjunction choices in display order.
var Conjunctions = []Conjunction{And, Or}

// Valid reports whether c is AND or OR.
func (c Conjunction) Valid() bool {
	return c == And || c == Or
}

const (
	typeGroup = "group"
	typeRule  = "rule"
)

// Node is either a *Group or a *Leaf.
type Node interface {
	clone() Node
}

// Group is an AND/OR group over an ordered list of child nodes.
type Group struct {
	Conjunction Conjunction `json:"conjunction"`
	Rules       []Node      `json:"rules"`
}

// Leaf is a single comparison. Qualifier is empty when absent.
type Leaf struct {
	Field     string `json:"field"`
	Qualifier string `json:"qualifier,omitempty"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
}

// Tree is the top-level, ordered list of eligibility rule nodes.
type Tree []Node

// NewGroup returns an empty group with the given conjunction.
func NewGroup(c Conjunction) *Group {
	return &Group{Conjunction: c, Rules: []Node{}}
}

// DefaultTree is the tree rendered for a card that has no rules at all.
func DefaultTree() Tree {
	return Tree{NewGroup(And)}
}

func (g *Group) clone() Node {
	out := &Group{Conjunction: g.Conjunction, Rules: make([]Node, len(g.Rules))}
	for i, n := range g.Rules {
		out.Rules[i] = n.clone()
	}
	return out
}

func (l *Leaf) clone() Node {
	cp := *l
	return &cp
}

// Clone returns a deep copy of the tree. A nil tree stays nil.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for i, n := range t {
		out[i] = n.clone()
	}
	return out
}

type groupJSON struct {
	Type        string            `json:"type"`
	Conjunction Conjunction       `json:"conjunction"`
	Rules       []json.RawMessage `json:"rules"`
}

type leafJSON struct {
	Type      string          `json:"type"`
	Field     string          `json:"field"`
	Qualifier string          `json:"qualifier,omitempty"`
	Operator  string          `json:"operator"`
	Value     json.RawMessage `json:"value"`
}

// MarshalJSON encodes the group with its "type" tag.
func (g *Group) MarshalJSON() ([]byte, error) {
	children := g.Rules
	if children == nil {
		children = []Node{}
	}
	return jsonenc.Marshal(struct {
		Type        string      `json:"type"`
		Conjunction Conjunction `json:"conjunction"`
		Rules       []Node      `json:"rules"`
	}{typeGroup, g.Conjunction, children})
}

// MarshalJSON encodes the leaf with its "type" tag.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	return jsonenc.Marshal(struct {
		Type      string `json:"type"`
		Field     string `json:"field"`
		Qualifier string `json:"qualifier,omitempty"`
		Operator  string `json:"operator"`
		Value     string `json:"value"`
	}{typeRule, l.Field, l.Qualifier, l.Operator, l.Value})
}

// UnmarshalJSON decodes a list of tagged nodes.
func (t *Tree) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("rules: decode tree: %w", err)
	}
	out := make(Tree, 0, len(raws))
	for i, raw := range raws {
		n, err := DecodeNode(raw)
		if err != nil {
			return fmt.Errorf("rules: node %d: %w", i, err)
		}
		out = append(out, n)
	}
	*t = out
	return nil
}

// DecodeNode decodes one tagged node. Anything not tagged "group" is read
// as a leaf.
func DecodeNode(raw json.RawMessage) (Node, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	if head.Type == typeGroup {
		var g groupJSON
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, err
		}
		if g.Conjunction == "" {
			g.Conjunction = And
		}
		out := &Group{Conjunction: g.Conjunction, Rules: make([]Node, 0, len(g.Rules))}
		for i, child := range g.Rules {
			n, err := DecodeNode(child)
			if err != nil {
				return nil, fmt.Errorf("child %d: %w", i, err)
			}
			out.Rules = append(out.Rules, n)
		}
		return out, nil
	}
	var l leafJSON
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &Leaf{
		Field:     l.Field,
		Qualifier: l.Qualifier,
		Operator:  l.Operator,
		Value:     scalarString(l.Value),
	}, nil
}

// scalarString renders a JSON scalar the way a text control would show it.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}
