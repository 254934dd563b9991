package sqlite

import (
	"context"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type queryInput struct {
	Query string `json:"query" jsonschema:"SQL query to execute"`
}

type schemaInput struct{}

// Register adds the SQL tools to the adapter's REST and MCP surfaces.
func Register(srv *adapter.Server, svc *Service) {
	srv.Add(adapter.Tool{
		Name:        "sql_query",
		Description: "Execute SQL queries against a SQLite database",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "SQL query to execute"},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			text, err := svc.Query(ctx, adapter.GetString(args, "query"))
			if err != nil {
				return nil, err
			}
			return map[string]string{"result": text}, nil
		},
	})

	srv.Add(adapter.Tool{
		Name:        "sql_get_schema",
		Description: "Get the database schema",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			text, err := svc.Schema(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]string{"result": text}, nil
		},
	})

	registerMCP(srv.MCP(), svc)
}

func registerMCP(server *mcp.Server, svc *Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sql_query",
		Description: "Execute SQL queries against a SQLite database",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input queryInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		text, err := svc.Query(ctx, input.Query)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, adapter.TextOutput{Text: text}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sql_get_schema",
		Description: "Get the database schema",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ schemaInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		text, err := svc.Schema(ctx)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, adapter.TextOutput{Text: text}, nil
	})
}
