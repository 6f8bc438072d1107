package api

import (
	"fmt"

	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/form"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/vocab"
)

// SchemaResponse describes the vocabulary cards are edited against.
type SchemaResponse struct {
	Channels     []string                                 `json:"channels"`
	Tags         map[card.TagCategory]vocab.TagVocabulary `json:"tags"`
	RuleFields   []rules.Field                            `json:"ruleFields"`
	Operators    []string                                 `json:"operators"`
	Conjunctions []rules.Conjunction                      `json:"conjunctions"`
}

// ParseRuleRequest is the body of POST /rules/parse.
type ParseRuleRequest struct {
	Rule string `json:"rule" example:"contract_end_date days_until < 30" validate:"required"`
}

// ParseRuleResponse reports a parsed leaf or why the text was not recognized.
type ParseRuleResponse struct {
	Recognized bool        `json:"recognized"`
	Rule       *rules.Leaf `json:"rule,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// ConvertResponse lists the generated cards.
type ConvertResponse struct {
	Cards []*card.Card `json:"cards" validate:"required"`
}

// CardListResponse wraps the cached cards.
type CardListResponse struct {
	Cards []*card.Card `json:"cards" validate:"required"`
}

// CardResponse is a card with its revision tag and conversion leftovers.
type CardResponse struct {
	Index     int                  `json:"index"`
	ETag      string               `json:"etag"`
	Card      *card.Card           `json:"card"`
	Discarded []rules.Unrecognized `json:"discarded,omitempty"`
}

// FormResponse is returned after applying form input.
type FormResponse struct {
	Card     *card.Card     `json:"card"`
	Warnings []card.Warning `json:"warnings"`
	View     form.View      `json:"view"`
}

// ValidateResponse lists lint findings.
type ValidateResponse struct {
	Issues []card.Issue `json:"issues"`
}

// RuleEventRequest is one rule editor event. Path addresses the target
// node; add events with an empty path append to the top level.
type RuleEventRequest struct {
	Type  string `json:"type" example:"set_value" validate:"required"`
	Path  []int  `json:"path"`
	Value string `json:"value,omitempty"`
}

// Event converts the request into a reducer event.
func (r RuleEventRequest) Event() (rules.Event, error) {
	p := rules.Path(r.Path)
	switch r.Type {
	case "set_conjunction":
		return rules.SetConjunction{Path: p, Conjunction: rules.Conjunction(r.Value)}, nil
	case "set_field":
		return rules.SetField{Path: p, Field: r.Value}, nil
	case "set_qualifier":
		return rules.SetQualifier{Path: p, Qualifier: r.Value}, nil
	case "set_operator":
		return rules.SetOperator{Path: p, Operator: r.Value}, nil
	case "set_value":
		return rules.SetValue{Path: p, Value: r.Value}, nil
	case "add_rule":
		return rules.AddRule{Path: p}, nil
	case "add_group":
		return rules.AddGroup{Path: p}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", apperr.ErrInvalidInput, r.Type)
	}
}
