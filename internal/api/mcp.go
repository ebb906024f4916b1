package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/tools"
)

// ToolSource is the tool registry as seen by the MCP layer.
type ToolSource interface {
	Names() []string
	Get(name string) (tools.Tool, bool)
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Tools        ToolSource
	Sectors      SectorLister
	Interactions InteractionLister
	Version      string
}

// NewMCPServer creates an MCP server exposing every registry tool and the
// sector and interaction resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"fundscout",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("fundscout: semantic search, sector lookups and investor activity over a startup funding dataset."),
		server.WithRecovery(),
	)

	for _, name := range deps.Tools.Names() {
		t, _ := deps.Tools.Get(name)
		s.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, agent.SchemaJSON(t.Parameters)), mcpInvoke(deps, t.Name))
	}

	s.AddResource(
		mcp.NewResource(
			"fundscout://sectors",
			"Sectors",
			mcp.WithResourceDescription("Sector vocabulary of the funding dataset"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSectors(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"fundscout://recent",
			"Recent Queries",
			mcp.WithResourceDescription("Last 10 routed queries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

// mcpInvoke routes an MCP tool call through the registry, so MCP clients get
// the same argument validation as agents.
func mcpInvoke(deps MCPDeps, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := deps.Tools.Invoke(ctx, name, raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(out), nil
	}
}

func mcpResourceSectors(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sectors, err := deps.Sectors.ListValidSectors(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sectors: %w", err)
		}

		b, err := json.Marshal(sectors)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sectors: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Interactions.RecentInteractions(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Query     string `json:"query"`
			Intent    string `json:"intent"`
			Status    string `json:"status"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			query := ix.Query
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Query:     query,
				Intent:    ix.Intent,
				Status:    ix.Status,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
