// Package convert turns spreadsheet rows into action cards with one LLM
// call per row.
package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/llm"
	"github.com/starford/cardsmith/internal/rules"
)

// ErrMalformedOutput is returned when the model reply is not a JSON object
// that decodes as a card.
var ErrMalformedOutput = errors.New("convert: malformed model output")

// Result is one converted row.
type Result struct {
	Card      *card.Card           `json:"card"`
	Discarded []rules.Unrecognized `json:"discarded,omitempty"`
}

// Converter converts rows with a generator.
type Converter struct {
	gen    llm.Generator
	schema func() *rules.Schema
	logger *slog.Logger
}

// New returns a converter. schema is consulted on every call so a reloaded
// vocabulary takes effect immediately.
func New(gen llm.Generator, schema func() *rules.Schema, logger *slog.Logger) *Converter {
	if schema == nil {
		schema = rules.DefaultSchema
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{gen: gen, schema: schema, logger: logger}
}

// Convert builds the prompt for row, asks the generator and decodes the
// reply. Eligibility rule strings the parser does not recognise are left
// out of the card and reported in Result.Discarded.
func (c *Converter) Convert(ctx context.Context, row Row) (Result, error) {
	schema := c.schema()
	prompt, err := BuildPrompt(row, schema.FieldNames())
	if err != nil {
		return Result{}, err
	}

	reply, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("convert: generate failed", slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("convert: generate: %w", err)
	}

	res, err := Decode(schema, reply)
	if err != nil {
		c.logger.Error("convert: could not parse model output",
			slog.String("error", err.Error()),
			slog.String("raw", reply),
		)
		return Result{}, err
	}
	for _, d := range res.Discarded {
		c.logger.Warn("convert: discarded eligibility rule",
			slog.String("rule", d.Raw),
			slog.String("reason", d.Reason),
		)
	}
	return res, nil
}

// Decode extracts the JSON object from a model reply and turns it into a
// card, parsing eligibility rule strings with schema.
func Decode(schema *rules.Schema, reply string) (Result, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), &obj); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if obj == nil {
		return Result{}, fmt.Errorf("%w: null", ErrMalformedOutput)
	}

	items, _ := obj["eligibilityRules"].([]any)
	delete(obj, "eligibilityRules")

	data, err := json.Marshal(obj)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	cd, err := card.Decode(data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	tree, discarded := schema.ParseRuleObjects(items)
	cd.EligibilityRules = tree
	return Result{Card: cd, Discarded: discarded}, nil
}
