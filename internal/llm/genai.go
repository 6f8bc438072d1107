package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GenAI calls the model through the Google Gen AI SDK.
type GenAI struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAI creates an SDK-backed generator.
func NewGenAI(ctx context.Context, opts Options) (*GenAI, error) {
	opts = opts.withDefaults()
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: genai provider requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &GenAI{client: client, model: opts.Model, timeout: opts.Timeout}, nil
}

// Generate sends prompt as a single user turn.
func (g *GenAI) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrUnexpectedResponse
	}
	return text, nil
}
