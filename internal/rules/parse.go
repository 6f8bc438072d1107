package rules

import (
	"fmt"
	"strings"
)

// ParseResult is either Parsed or Unrecognized.
type ParseResult interface {
	parseResult()
}

// Parsed carries a recognised leaf.
type Parsed struct {
	Leaf *Leaf
}

// Unrecognized carries the raw text that could not be turned into a leaf.
type Unrecognized struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (Parsed) parseResult()       {}
func (Unrecognized) parseResult() {}

// Parse turns free text of the form "field [qualifier] operator value" into
// a leaf. Fields outside the schema are unrecognized. The qualifier is kept
// as written and is not checked against the field's qualifier list.
func (s *Schema) Parse(text string) ParseResult {
	p := &ruleParser{src: strings.TrimSpace(text)}
	leaf, err := p.parse()
	if err != nil {
		return Unrecognized{Raw: text, Reason: err.Error()}
	}
	if !s.Known(leaf.Field) {
		return Unrecognized{Raw: text, Reason: fmt.Sprintf("unknown field %q", leaf.Field)}
	}
	return Parsed{Leaf: leaf}
}

// ParseRuleObjects runs Parse over the {"rule": "..."} objects an LLM reply
// carries in eligibilityRules. Elements of any other shape are discarded.
func (s *Schema) ParseRuleObjects(items []any) (Tree, []Unrecognized) {
	tree := Tree{}
	var discarded []Unrecognized
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			discarded = append(discarded, Unrecognized{Raw: fmt.Sprint(item), Reason: "not a rule object"})
			continue
		}
		text, ok := obj["rule"].(string)
		if !ok {
			discarded = append(discarded, Unrecognized{Raw: fmt.Sprint(item), Reason: "missing rule text"})
			continue
		}
		switch r := s.Parse(text).(type) {
		case Parsed:
			tree = append(tree, r.Leaf)
		case Unrecognized:
			discarded = append(discarded, r)
		}
	}
	return tree, discarded
}

// ruleParser is a recursive-descent parser over:
//
//	rule      = field [ ws qualifier ] ws* operator ws* value
//	field     = ident [ "." ident ]
//	ident     = ( letter | digit | "_" )+
//	qualifier = ( letter | "_" )+
//	operator  = "<=" | ">=" | "!=" | "=" | "<" | ">"
//	value     = rest of the line, non-empty
type ruleParser struct {
	src string
	pos int
}

func (p *ruleParser) parse() (*Leaf, error) {
	field, err := p.field()
	if err != nil {
		return nil, err
	}
	qualifier := p.qualifier()
	p.skipSpace()
	op, err := p.operator()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	rest := p.src[p.pos:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	value := strings.TrimSpace(rest)
	if value == "" {
		return nil, fmt.Errorf("missing value after %q", op)
	}
	return &Leaf{Field: field, Qualifier: qualifier, Operator: op, Value: value}, nil
}

func (p *ruleParser) field() (string, error) {
	head := p.ident()
	if head == "" {
		return "", fmt.Errorf("expected field name at offset %d", p.pos)
	}
	if p.peek() == '.' {
		save := p.pos
		p.pos++
		if tail := p.ident(); tail != "" {
			return head + "." + tail, nil
		}
		p.pos = save
	}
	return head, nil
}

// qualifier consumes " word" only when an operator can follow it;
// otherwise the position is restored.
func (p *ruleParser) qualifier() string {
	save := p.pos
	if !p.skipSpace() {
		return ""
	}
	start := p.pos
	for p.pos < len(p.src) && isQualifierChar(p.src[p.pos]) {
		p.pos++
	}
	word := p.src[start:p.pos]
	if word == "" {
		p.pos = save
		return ""
	}
	p.skipSpace()
	if !p.atOperator() {
		p.pos = save
		return ""
	}
	return word
}

func (p *ruleParser) operator() (string, error) {
	for _, op := range []string{"<=", ">=", "!=", "=", "<", ">"} {
		if strings.HasPrefix(p.src[p.pos:], op) {
			p.pos += len(op)
			return op, nil
		}
	}
	return "", fmt.Errorf("expected operator at offset %d", p.pos)
}

func (p *ruleParser) atOperator() bool {
	if p.pos >= len(p.src) {
		return false
	}
	switch p.src[p.pos] {
	case '=', '<', '>':
		return true
	case '!':
		return strings.HasPrefix(p.src[p.pos:], "!=")
	}
	return false
}

func (p *ruleParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *ruleParser) skipSpace() bool {
	start := p.pos
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
	return p.pos > start
}

func (p *ruleParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isQualifierChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isQualifierChar(c) || (c >= '0' && c <= '9')
}
