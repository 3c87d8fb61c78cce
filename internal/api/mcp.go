package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/billmatch/internal/extract"
	"github.com/kalambet/billmatch/internal/legis"
	"github.com/kalambet/billmatch/internal/match"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Matcher *match.Matcher
}

// NewMCPServer creates an MCP server exposing reference extraction, matching
// and corpus lookup as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"billmatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("billmatch finds bill and law references in lobbying text and resolves them against the congressional bill corpus."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("extract_references",
			mcp.WithDescription("Find bill numbers, public law numbers and act titles in a piece of text."),
			mcp.WithString("text", mcp.Description("Text to scan"), mcp.Required()),
			mcp.WithNumber("filing_year", mcp.Description("Year the text was filed, used to infer the congress")),
		),
		mcpExtractReferences(),
	)

	s.AddTool(
		mcp.NewTool("match_text",
			mcp.WithDescription("Extract references from text and resolve each against the bill corpus."),
			mcp.WithString("text", mcp.Description("Text to scan"), mcp.Required()),
			mcp.WithNumber("filing_year", mcp.Description("Year the text was filed, used to infer the congress")),
		),
		mcpMatchText(deps),
	)

	s.AddTool(
		mcp.NewTool("lookup_bill",
			mcp.WithDescription("Look up a bill in the corpus by congress, type and number."),
			mcp.WithNumber("congress", mcp.Description("Congress number, e.g. 115"), mcp.Required()),
			mcp.WithString("bill_type", mcp.Description("Bill type such as hr, s, hres, sjres"), mcp.Required()),
			mcp.WithString("number", mcp.Description("Bill number"), mcp.Required()),
		),
		mcpLookupBill(deps),
	)

	return s
}

func mcpExtractReferences() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		refs, err := extract.New().ExtractContext(ctx, text, req.GetInt("filing_year", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("extraction failed: %v", err)), nil
		}
		out := make([]referenceView, len(refs))
		for i := range refs {
			out[i] = newReferenceView(&refs[i])
		}
		return mcpJSON(out)
	}
}

func mcpMatchText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		out, err := matchText(ctx, deps.Matcher, text, req.GetInt("filing_year", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("matching failed: %v", err)), nil
		}
		return mcpJSON(out)
	}
}

func mcpLookupBill(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		congress := req.GetInt("congress", 0)
		if congress <= 0 {
			return mcpError("congress is required"), nil
		}
		typ, err := req.RequireString("bill_type")
		if err != nil {
			return mcpError("bill_type is required"), nil
		}
		number, err := req.RequireString("number")
		if err != nil {
			return mcpError("number is required"), nil
		}

		bt := legis.ParseBillType(typ)
		if !bt.Valid() {
			return mcpError(fmt.Sprintf("unknown bill type %q", typ)), nil
		}
		number = strings.TrimLeft(number, "0")
		bill, ok := deps.Matcher.Index().Bills.Get(congress, bt, number)
		if !ok {
			return mcpError(fmt.Sprintf("no bill %s%s in congress %d", bt, number, congress)), nil
		}
		return mcpJSON(newBillView(bill))
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
