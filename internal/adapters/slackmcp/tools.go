package slackmcp

import (
	"context"
	"encoding/json"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type sendMessageInput struct {
	Channel  string           `json:"channel" jsonschema:"Slack channel ID or name"`
	Text     string           `json:"text" jsonschema:"Message text"`
	ThreadTS string           `json:"thread_ts,omitempty" jsonschema:"Thread timestamp to reply to"`
	Blocks   []map[string]any `json:"blocks,omitempty" jsonschema:"Slack blocks for rich messages"`
}

type createChannelInput struct {
	Name      string   `json:"name" jsonschema:"Channel name"`
	IsPrivate bool     `json:"is_private,omitempty" jsonschema:"Whether the channel is private"`
	UserIDs   []string `json:"user_ids,omitempty" jsonschema:"User IDs to invite to the channel"`
}

type listChannelsInput struct{}

type searchInput struct {
	Query   string `json:"query" jsonschema:"Search query"`
	Count   int    `json:"count,omitempty" jsonschema:"Number of results to return (default 20)"`
	Sort    string `json:"sort,omitempty" jsonschema:"Sort method (score or timestamp)"`
	SortDir string `json:"sort_dir,omitempty" jsonschema:"Sort direction (asc or desc)"`
}

// Register adds the Slack tools to the adapter's REST and MCP surfaces.
func Register(srv *adapter.Server, svc *Service) {
	srv.Add(adapter.Tool{
		Name:        "slack_send_message",
		Description: "Send a message to a Slack channel",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"channel":   map[string]any{"type": "string", "description": "Slack channel ID or name"},
				"text":      map[string]any{"type": "string", "description": "Message text"},
				"thread_ts": map[string]any{"type": "string", "description": "Thread timestamp to reply to"},
				"blocks":    map[string]any{"type": "array", "description": "Slack blocks for rich messages"},
			},
			"required": []string{"channel", "text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.SendMessage(ctx,
				adapter.GetString(args, "channel"),
				adapter.GetString(args, "text"),
				adapter.GetString(args, "thread_ts"),
				mapSlice(args["blocks"]))
		},
	})

	srv.Add(adapter.Tool{
		Name:        "slack_create_channel",
		Description: "Create a new Slack channel",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":       map[string]any{"type": "string", "description": "Channel name"},
				"is_private": map[string]any{"type": "boolean", "description": "Whether the channel is private"},
				"user_ids":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "User IDs to invite to the channel"},
			},
			"required": []string{"name"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.CreateChannel(ctx,
				adapter.GetString(args, "name"),
				adapter.GetBool(args, "is_private", false),
				adapter.GetStringSlice(args, "user_ids"))
		},
	})

	srv.Add(adapter.Tool{
		Name:        "slack_list_channels",
		Description: "List all channels in the Slack workspace",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.ListChannels(ctx)
		},
	})

	srv.Add(adapter.Tool{
		Name:        "slack_search",
		Description: "Search for messages in Slack",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":    map[string]any{"type": "string", "description": "Search query"},
				"count":    map[string]any{"type": "integer", "description": "Number of results to return"},
				"sort":     map[string]any{"type": "string", "description": "Sort method (score or timestamp)"},
				"sort_dir": map[string]any{"type": "string", "description": "Sort direction (asc or desc)"},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Search(ctx,
				adapter.GetString(args, "query"),
				adapter.GetInt(args, "count", 20),
				adapter.GetString(args, "sort"),
				adapter.GetString(args, "sort_dir"))
		},
	})

	registerMCP(srv.MCP(), svc)
}

func registerMCP(server *mcp.Server, svc *Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "slack_send_message",
		Description: "Send a message to a Slack channel",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input sendMessageInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.SendMessage(ctx, input.Channel, input.Text, input.ThreadTS, input.Blocks)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "slack_create_channel",
		Description: "Create a new Slack channel",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input createChannelInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.CreateChannel(ctx, input.Name, input.IsPrivate, input.UserIDs)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "slack_list_channels",
		Description: "List all channels in the Slack workspace",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ listChannelsInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.ListChannels(ctx)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "slack_search",
		Description: "Search for messages in Slack",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.Search(ctx, input.Query, input.Count, input.Sort, input.SortDir)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})
}

// asText renders a tool result as the JSON text MCP clients read.
func asText(v any) adapter.TextOutput {
	data, err := json.Marshal(v)
	if err != nil {
		return adapter.TextOutput{}
	}
	return adapter.TextOutput{Text: string(data)}
}

// mapSlice decodes the []any a JSON body produces for an array of objects.
func mapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
