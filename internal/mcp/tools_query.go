package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerQueryTools() {
	s.mcp.AddTool(mcp.NewTool("run_query",
		mcp.WithDescription("Run a SQL query against a database connection. 🛑 Write queries (UPDATE/DELETE/DROP/INSERT/ALTER/TRUNCATE) are rejected unless allowWrites is true."),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
		mcp.WithString("query", mcp.Description("SQL query to execute"), mcp.Required()),
		mcp.WithString("queryId", mcp.Description("Cache key to store the result under (optional)")),
		mcp.WithBoolean("allowWrites", mcp.Description("Set to true to permit write statements")),
	), s.handleRunQuery)

	s.mcp.AddTool(mcp.NewTool("save_query",
		mcp.WithDescription("Save a named SQL query bound to a connection"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Name for the saved query"), mcp.Required()),
		mcp.WithString("query", mcp.Description("SQL text"), mcp.Required()),
	), s.handleSaveQuery)

	s.mcp.AddTool(mcp.NewTool("run_saved_query",
		mcp.WithDescription("Run a previously saved query by ID"),
		mcp.WithString("queryId", mcp.Description("Saved query ID"), mcp.Required()),
	), s.handleRunSavedQuery)

	s.mcp.AddTool(mcp.NewTool("list_saved_queries",
		mcp.WithDescription("List saved queries, optionally filtered by connection"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID (optional)")),
	), s.handleListSavedQueries)
}

// isWriteStatement reports whether a SQL string starts with a mutating verb.
func isWriteStatement(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"UPDATE", "DELETE", "DROP", "INSERT", "ALTER", "TRUNCATE", "CREATE"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// adHocQueryID picks the cache key for a run_query call. Ad-hoc calls
// without a queryId cache per connection so results from different
// connections cannot overwrite each other.
func adHocQueryID(queryID, connID string) string {
	if queryID != "" {
		return queryID
	}
	return "mcp-query:" + connID
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func (s *Server) handleRunQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	connID, _ := args["connectionId"].(string)
	query, _ := args["query"].(string)
	queryID, _ := args["queryId"].(string)
	allowWrites, _ := args["allowWrites"].(bool)

	if connID == "" || query == "" {
		return nil, fmt.Errorf("connectionId and query are required")
	}

	if isWriteStatement(query) && !allowWrites {
		return textResult(fmt.Sprintf(
			"Refusing write query without allowWrites=true: %s", truncate(query, 100))), nil
	}

	result, err := s.database.Run(ctx, connID, adHocQueryID(queryID, connID), query)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleSaveQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	connID, _ := args["connectionId"].(string)
	name, _ := args["name"].(string)
	query, _ := args["query"].(string)

	if connID == "" || name == "" || query == "" {
		return nil, fmt.Errorf("connectionId, name and query are required")
	}

	saved, err := s.database.CreateSavedQuery(name, connID, query)
	if err != nil {
		return nil, fmt.Errorf("save query: %w", err)
	}
	return jsonResult(saved)
}

func (s *Server) handleRunSavedQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryID := req.GetString("queryId", "")
	if queryID == "" {
		return nil, fmt.Errorf("queryId is required")
	}
	result, err := s.database.RunSaved(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("run saved query: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleListSavedQueries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queries, err := s.database.ListSavedQueries(req.GetString("connectionId", ""))
	if err != nil {
		return nil, fmt.Errorf("list saved queries: %w", err)
	}
	return jsonResult(queries)
}
