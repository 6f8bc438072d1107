// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes cardsmith tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/convert"
	"github.com/starford/cardsmith/internal/jsonenc"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/vocab"
)

// CardFormatURI is the URI of the card format resource.
const CardFormatURI = "cardsmith://card-format"

// Server wraps the MCP server with cardsmith tools.
type Server struct {
	mcp    *server.MCPServer
	vocab  *vocab.Store
	conv   *convert.Converter
	logger *slog.Logger
}

// New creates a new MCP server with all cardsmith tools registered. conv
// may be nil, in which case convert_row reports that no generator is
// configured.
func New(vs *vocab.Store, conv *convert.Converter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{vocab: vs, conv: conv, logger: logger}

	s.mcp = server.NewMCPServer(
		"cardsmith",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("parse_rule",
		mcp.WithDescription("Parse a free-text eligibility rule such as "+
			"'contract_end_date days_until < 30' into a structured rule leaf."),
		mcp.WithString("rule", mcp.Required(), mcp.Description("Rule text: field [qualifier] operator value")),
	), s.parseRule)

	s.mcp.AddTool(mcp.NewTool("convert_row",
		mcp.WithDescription("Convert one spreadsheet row into an action card with the configured LLM. "+
			"Rule strings that cannot be parsed are returned under 'discarded'."),
		mcp.WithString("row", mcp.Required(), mcp.Description("JSON object mapping column names to cell values")),
	), s.convertRow)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the action card format and the active vocabulary. "+
			"Call this before writing or editing cards."),
	), s.getCardContract)

	s.mcp.AddTool(mcp.NewTool("validate_card",
		mcp.WithDescription("Lint an action card against the vocabulary and rule schema. "+
			"Findings are advisory."),
		mcp.WithString("card", mcp.Required(), mcp.Description("Action card JSON document")),
	), s.validateCard)

	s.mcp.AddTool(mcp.NewTool("read_sheet",
		mcp.WithDescription("Read an .xlsx or .xls spreadsheet from an http(s) URL or a base64 data URI "+
			"and return its columns and first rows."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("File name used to pick the format when the URL has none")),
		mcp.WithNumber("limit", mcp.Description("Rows to return (default 5)")),
	), s.readSheet)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource(CardFormatURI, "Action Card Format",
			mcp.WithResourceDescription("Action card JSON format and the active vocabulary."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := jsonenc.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

type parseRuleResult struct {
	Recognized bool        `json:"recognized"`
	Rule       *rules.Leaf `json:"rule,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

func (s *Server) parseRule(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("rule")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch res := s.vocab.Current().RuleSchema().Parse(text).(type) {
	case rules.Parsed:
		return jsonResult(parseRuleResult{Recognized: true, Rule: res.Leaf}), nil
	case rules.Unrecognized:
		return jsonResult(parseRuleResult{Reason: res.Reason}), nil
	}
	return mcp.NewToolResultError("unexpected parse result"), nil
}

func (s *Server) convertRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.conv == nil {
		return mcp.NewToolResultError("no LLM generator is configured"), nil
	}
	raw, err := req.RequireString("row")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var row convert.Row
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return mcp.NewToolResultError("row must be a JSON object: " + err.Error()), nil
	}
	res, err := s.conv.Convert(ctx, row)
	if err != nil {
		if errors.Is(err, convert.ErrMalformedOutput) {
			return mcp.NewToolResultError("the model did not return a usable card: " + err.Error()), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getCardContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormat(s.vocab.Current())), nil
}

type validateResult struct {
	Valid  bool         `json:"valid"`
	Issues []card.Issue `json:"issues"`
}

func (s *Server) validateCard(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("card")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := card.Decode([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError("invalid card JSON: " + err.Error()), nil
	}
	issues := card.Lint(c, s.vocab.Current())
	if issues == nil {
		issues = []card.Issue{}
	}
	return jsonResult(validateResult{Valid: len(issues) == 0, Issues: issues}), nil
}

func (s *Server) readCardFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CardFormatURI,
			MIMEType: "text/markdown",
			Text:     CardFormat(s.vocab.Current()),
		},
	}, nil
}
