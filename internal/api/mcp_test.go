package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_ExtractReferences(t *testing.T) {
	handler := mcpExtractReferences()
	req := makeCallToolRequest("extract_references", map[string]interface{}{
		"text":        "We lobbied on H.R. 1625 and P.L. 115-141.",
		"filing_year": 2018,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var refs []referenceView
	if err := json.Unmarshal([]byte(toolText(t, result)), &refs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2", len(refs))
	}
	if refs[0].BillNumber != "1625" || refs[1].LawNumber != "PL115-141" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestMCPTool_ExtractReferences_MissingText(t *testing.T) {
	result, err := mcpExtractReferences()(context.Background(), makeCallToolRequest("extract_references", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing text")
	}
}

func TestMCPTool_MatchText(t *testing.T) {
	handler := mcpMatchText(MCPDeps{Matcher: newTestMatcher()})
	req := makeCallToolRequest("match_text", map[string]interface{}{
		"text":        "H.R. 1625, the Consolidated Appropriations Act",
		"filing_year": 2018,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []referenceMatchView
	if err := json.Unmarshal([]byte(toolText(t, result)), &rows); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(rows) != 1 || rows[0].Match == nil || rows[0].Match.BillID != "hr1625-115" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestMCPTool_LookupBill(t *testing.T) {
	handler := mcpLookupBill(MCPDeps{Matcher: newTestMatcher()})

	result, err := handler(context.Background(), makeCallToolRequest("lookup_bill", map[string]interface{}{
		"congress": 115, "bill_type": "H.R.", "number": "1625",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var bill billView
	if err := json.Unmarshal([]byte(toolText(t, result)), &bill); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if bill.BillID != "hr1625-115" || bill.LawNumber != "PL115-141" {
		t.Errorf("bill = %+v", bill)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("lookup_bill", map[string]interface{}{
		"congress": 116, "bill_type": "hr", "number": "1625",
	}))
	if !result.IsError {
		t.Error("expected tool error for a bill outside the corpus")
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(MCPDeps{Matcher: newTestMatcher()}); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
