package rules

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Issue is one invariant violation found in a tree.
type Issue struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Validate checks every node against the schema: known field, supported
// operator, allowed qualifier and a valid conjunction. It never stops at
// the first problem.
func (s *Schema) Validate(tree Tree) []Issue {
	var issues []Issue
	s.validateLevel(tree, Path{}, &issues)
	return issues
}

func (s *Schema) validateLevel(nodes []Node, parent Path, issues *[]Issue) {
	for i, n := range nodes {
		p := append(append(Path{}, parent...), i)
		switch v := n.(type) {
		case *Group:
			if !v.Conjunction.Valid() {
				*issues = append(*issues, Issue{Key: p.String(), Message: fmt.Sprintf("conjunction %q must be AND or OR", v.Conjunction)})
			}
			s.validateLevel(v.Rules, p, issues)
		case *Leaf:
			if err := s.ValidateLeaf(v); err != nil {
				*issues = append(*issues, leafIssues(p, err)...)
			}
		}
	}
}

// ValidateLeaf validates a single leaf.
func (s *Schema) ValidateLeaf(l *Leaf) error {
	f, _ := s.Lookup(l.Field)
	return validation.ValidateStruct(l,
		validation.Field(&l.Field, validation.Required, validation.In(anySlice(s.FieldNames())...)),
		validation.Field(&l.Operator, validation.Required, validation.In(anySlice(Operators)...)),
		validation.Field(&l.Qualifier, validation.In(anySlice(f.Qualifiers)...).Error("is not allowed for this field")),
	)
}

func leafIssues(p Path, err error) []Issue {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []Issue{{Key: p.String(), Message: err.Error()}}
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Issue, 0, len(keys))
	for _, k := range keys {
		out = append(out, Issue{Key: p.String(), Message: k + ": " + verrs[k].Error()})
	}
	return out
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
