// Package mcp implements the Model Context Protocol surface of the dashboard.
//
// It exposes the same capabilities as the HTTP API — report views, the
// sandboxed query path, and task execution — as MCP tools plus a resource
// for the report catalog, so MCP-compatible agents can drive the dashboard
// directly.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/arclight-ai/opsdeck/internal/agent"
	"github.com/arclight-ai/opsdeck/internal/analytics"
	"github.com/arclight-ai/opsdeck/internal/emitter"
)

// Server wraps the MCP server with the dashboard's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	analytics *analytics.Service
	agent     *agent.Client
	emitter   *emitter.Emitter
	logger    *slog.Logger
}

// New creates and configures an MCP server with all resources and tools.
func New(svc *analytics.Service, ag *agent.Client, em *emitter.Emitter, logger *slog.Logger) *Server {
	s := &Server{
		analytics: svc,
		agent:     ag,
		emitter:   em,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"opsdeck",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// opsdeck://reports/catalog — the list of available report views.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"opsdeck://reports/catalog",
			"Report Catalog",
			mcplib.WithResourceDescription("Names of the aggregate report views available via opsdeck_report"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleReportCatalog,
	)
}

func (s *Server) handleReportCatalog(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	payload, err := json.MarshalIndent(map[string]any{
		"views": analytics.ViewNames(),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "opsdeck://reports/catalog",
			MIMEType: "application/json",
			Text:     string(payload),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	payload, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(payload)},
		},
	}
}
