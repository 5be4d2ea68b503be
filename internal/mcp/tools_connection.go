package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerConnectionTools() {
	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List all configured database connections and whether each one is currently connected"),
	), s.handleListConnections)

	s.mcp.AddTool(mcp.NewTool("test_db_connection",
		mcp.WithDescription("Probe a database connection's reachability without keeping a handle open"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
	), s.handleTestConnection)

	s.mcp.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Get schema information (tables, columns, primary keys) of a database connection"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
	), s.handleGetSchema)

	s.mcp.AddTool(mcp.NewTool("disconnect_db",
		mcp.WithDescription("Close the live handle of a database connection"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
	), s.handleDisconnect)
}

func (s *Server) handleListConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.database.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return jsonResult(conns)
}

func (s *Server) handleTestConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connID := req.GetString("connectionId", "")
	if connID == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	result, err := s.database.TestConnection(ctx, connID)
	if err != nil {
		return nil, fmt.Errorf("test connection: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleGetSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connID := req.GetString("connectionId", "")
	if connID == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	schema, err := s.database.FullSchema(ctx, connID)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return jsonResult(schema)
}

func (s *Server) handleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connID := req.GetString("connectionId", "")
	if connID == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	if err := s.database.Disconnect(connID); err != nil {
		return nil, fmt.Errorf("disconnect: %w", err)
	}
	return textResult("disconnected"), nil
}
