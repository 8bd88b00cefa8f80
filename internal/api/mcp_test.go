package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/history"
	"github.com/pelden/lingobridge/internal/lookup"
	"github.com/pelden/lingobridge/internal/review"
	"github.com/pelden/lingobridge/internal/translate"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeEngine) {
	t.Helper()
	store, err := docstore.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := &fakeEngine{}
	pipeline := review.New(store)
	finder := lookup.New(store)

	return MCPDeps{
		Pipeline:   pipeline,
		Translator: translate.New(finder, eng, pipeline),
		Finder:     finder,
	}, eng
}

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

func TestMCPTool_Translate(t *testing.T) {
	deps, eng := newTestMCPDeps(t)
	handler := mcpTranslate(deps)

	req := makeCallToolRequest("translate", map[string]interface{}{
		"text":        "こんにちは",
		"source_lang": "japanese",
		"target_lang": "dzongkha",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1", eng.calls)
	}

	var out translate.Outcome
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if out.Cached {
		t.Error("expected uncached outcome")
	}
	if out.ItemID == "" {
		t.Error("expected fresh result to be queued for review")
	}

	// The queued item must be visible through the pipeline.
	items, err := deps.Pipeline.List(context.Background(), history.CollectionReview)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 review item, got %d", len(items))
	}
}

func TestMCPTool_Translate_MissingText(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpTranslate(deps)

	req := makeCallToolRequest("translate", map[string]interface{}{
		"source_lang": "japanese",
		"target_lang": "dzongkha",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing text")
	}
}

func TestMCPTool_Translate_BadLanguage(t *testing.T) {
	deps, eng := newTestMCPDeps(t)
	handler := mcpTranslate(deps)

	req := makeCallToolRequest("translate", map[string]interface{}{
		"text":        "hello",
		"source_lang": "klingon",
		"target_lang": "dzongkha",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown language")
	}
	if eng.calls != 0 {
		t.Errorf("engine calls = %d, want 0", eng.calls)
	}
}

func TestMCPTool_Lookup_Miss(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpLookup(deps)

	req := makeCallToolRequest("lookup", map[string]interface{}{
		"text":        "こんにちは",
		"source_lang": "japanese",
		"target_lang": "dzongkha",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "No stored translation") {
		t.Errorf("unexpected miss response: %s", toolText(t, result))
	}
}

func TestMCPTool_Lookup_Hit(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	// Seed a review item, then look up the same text.
	_, err := deps.Pipeline.Submit(context.Background(), history.TranslationResult{
		SourceText:            "こんにちは",
		TargetText:            "ཀུ་ཟུ།",
		TargetTransliteration: "クズ",
		Language:              history.Dzongkha,
	}, history.Japanese, history.Dzongkha)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	handler := mcpLookup(deps)
	req := makeCallToolRequest("lookup", map[string]interface{}{
		"text":        "  こんにちは  ",
		"source_lang": "japanese",
		"target_lang": "dzongkha",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var found history.TranslationResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &found); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if found.TargetText != "ཀུ་ཟུ།" {
		t.Errorf("targetText = %q, want %q", found.TargetText, "ཀུ་ཟུ།")
	}
	if found.Source != history.SourceCache {
		t.Errorf("source = %q, want %q", found.Source, history.SourceCache)
	}
}

func TestMCPTool_ListReview_LimitsItems(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	for i := 0; i < 3; i++ {
		_, err := deps.Pipeline.Submit(context.Background(), history.TranslationResult{
			SourceText: strings.Repeat("a", i+1),
			TargetText: "ཨ",
			Language:   history.Dzongkha,
		}, history.Japanese, history.Dzongkha)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	handler := mcpListReview(deps)
	req := makeCallToolRequest("list_review", map[string]interface{}{"limit": 2})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var items []history.HistoryItem
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestMCPTool_Approve(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	id, err := deps.Pipeline.Submit(context.Background(), history.TranslationResult{
		SourceText: "こんにちは",
		TargetText: "ཀུ་ཟུ།",
		Language:   history.Dzongkha,
	}, history.Japanese, history.Dzongkha)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	handler := mcpApprove(deps)
	req := makeCallToolRequest("approve_translation", map[string]interface{}{"id": id})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	pending, err := deps.Pipeline.List(context.Background(), history.CollectionReview)
	if err != nil {
		t.Fatalf("List(review) failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty review queue, got %d items", len(pending))
	}
	library, err := deps.Pipeline.List(context.Background(), history.CollectionLibrary)
	if err != nil {
		t.Fatalf("List(library) failed: %v", err)
	}
	if len(library) != 1 {
		t.Fatalf("expected 1 library item, got %d", len(library))
	}
}

func TestMCPTool_Approve_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpApprove(deps)

	req := makeCallToolRequest("approve_translation", map[string]interface{}{"id": "missing"})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown id")
	}
	if !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("unexpected error text: %s", toolText(t, result))
	}
}
