package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/history"
	"github.com/pelden/lingobridge/internal/review"
	"github.com/pelden/lingobridge/internal/translate"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline   *review.Pipeline
	Translator *translate.Translator
	Finder     Finder
}

// NewMCPServer creates an MCP server with the translation tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lingobridge",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("lingobridge: Japanese/Dzongkha translation with a shared review library."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("translate",
			mcp.WithDescription("Translate text between Japanese and Dzongkha. Cached results are reused; fresh results are queued for human review."),
			mcp.WithString("text", mcp.Description("Text to translate"), mcp.Required()),
			mcp.WithString("source_lang", mcp.Description("Source language: japanese or dzongkha"), mcp.Required()),
			mcp.WithString("target_lang", mcp.Description("Target language: japanese or dzongkha"), mcp.Required()),
		),
		mcpTranslate(deps),
	)

	s.AddTool(
		mcp.NewTool("lookup",
			mcp.WithDescription("Check whether a text already has a stored translation, without generating a new one."),
			mcp.WithString("text", mcp.Description("Text to look up"), mcp.Required()),
			mcp.WithString("source_lang", mcp.Description("Source language: japanese or dzongkha"), mcp.Required()),
			mcp.WithString("target_lang", mcp.Description("Target language: japanese or dzongkha"), mcp.Required()),
		),
		mcpLookup(deps),
	)

	s.AddTool(
		mcp.NewTool("list_review",
			mcp.WithDescription("List translations pending human review, most recent first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 10)")),
		),
		mcpListReview(deps),
	)

	s.AddTool(
		mcp.NewTool("approve_translation",
			mcp.WithDescription("Approve a pending review item, moving it into the shared library."),
			mcp.WithString("id", mcp.Description("Review item id"), mcp.Required()),
		),
		mcpApprove(deps),
	)

	return s
}

func mcpLangPair(req mcp.CallToolRequest) (history.Language, history.Language, error) {
	srcRaw, err := req.RequireString("source_lang")
	if err != nil {
		return "", "", fmt.Errorf("source_lang is required")
	}
	tgtRaw, err := req.RequireString("target_lang")
	if err != nil {
		return "", "", fmt.Errorf("target_lang is required")
	}
	src, err := history.ParseLanguage(srcRaw)
	if err != nil {
		return "", "", err
	}
	tgt, err := history.ParseLanguage(tgtRaw)
	if err != nil {
		return "", "", err
	}
	return src, tgt, nil
}

func mcpTranslate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		src, tgt, err := mcpLangPair(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		outcome, err := deps.Translator.Translate(ctx, text, src, tgt)
		if err != nil {
			return mcpError(fmt.Sprintf("translation failed: %v", err)), nil
		}

		b, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding outcome: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLookup(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		src, tgt, err := mcpLangPair(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		result, err := deps.Finder.FindExisting(ctx, text, src, tgt)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		if result == nil {
			return mcpText("No stored translation found."), nil
		}

		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListReview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		items, err := deps.Pipeline.List(ctx, history.CollectionReview)
		if err != nil {
			return mcpError(fmt.Sprintf("listing review items: %v", err)), nil
		}
		if len(items) > limit {
			items = items[:limit]
		}

		b, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding items: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpApprove(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		newID, err := deps.Pipeline.Approve(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return mcpError(fmt.Sprintf("review item %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("approve failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Approved: now in library as %s", newID)), nil
	}
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
