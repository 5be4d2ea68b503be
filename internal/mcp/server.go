package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dbdeck/internal/service"
)

// Server is the MCP server for dbdeck. It exposes connection management and
// query tools so AI agents can work against configured databases.
type Server struct {
	mcp      *server.MCPServer
	database *service.DatabaseService
}

// New creates and configures an MCP server with all tools registered.
func New(database *service.DatabaseService) *Server {
	s := &Server{database: database}

	s.mcp = server.NewMCPServer(
		"dbdeck-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerConnectionTools()
	s.registerQueryTools()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
