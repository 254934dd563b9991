package telegrammcp

import (
	"context"
	"encoding/json"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type sendMessageInput struct {
	ChatID    string `json:"chat_id" jsonschema:"Telegram chat ID"`
	Text      string `json:"text" jsonschema:"Message text"`
	ReplyTo   int    `json:"reply_to_message_id,omitempty" jsonschema:"Message ID to reply to"`
	ParseMode string `json:"parse_mode,omitempty" jsonschema:"Parse mode (Markdown, MarkdownV2, HTML)"`
}

type getChatInput struct {
	ChatID string `json:"chat_id" jsonschema:"Telegram chat ID"`
}

type sendFileInput struct {
	ChatID   string `json:"chat_id" jsonschema:"Telegram chat ID"`
	FilePath string `json:"file_path" jsonschema:"Path to file to send"`
	Caption  string `json:"caption,omitempty" jsonschema:"File caption"`
}

type chatHistoryInput struct {
	ChatID string `json:"chat_id" jsonschema:"Telegram chat ID"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of messages to retrieve"`
}

// Register adds the Telegram tools to the adapter's REST and MCP surfaces.
func Register(srv *adapter.Server, svc *Service) {
	srv.Add(adapter.Tool{
		Name:        "telegram_send_message",
		Description: "Send a message to a Telegram chat",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"chat_id":             map[string]any{"type": "string", "description": "Telegram chat ID"},
				"text":                map[string]any{"type": "string", "description": "Message text"},
				"reply_to_message_id": map[string]any{"type": "integer", "description": "Message ID to reply to"},
				"parse_mode":          map[string]any{"type": "string", "description": "Parse mode (Markdown, MarkdownV2, HTML)"},
			},
			"required": []string{"chat_id", "text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.SendMessage(
				adapter.GetString(args, "chat_id"),
				adapter.GetString(args, "text"),
				adapter.GetInt(args, "reply_to_message_id", 0),
				adapter.GetString(args, "parse_mode"))
		},
	})

	srv.Add(adapter.Tool{
		Name:        "telegram_get_chat",
		Description: "Get information about a Telegram chat",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"chat_id": map[string]any{"type": "string", "description": "Telegram chat ID"},
			},
			"required": []string{"chat_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.GetChat(adapter.GetString(args, "chat_id"))
		},
	})

	srv.Add(adapter.Tool{
		Name:        "telegram_send_file",
		Description: "Send a file to a Telegram chat",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"chat_id":   map[string]any{"type": "string", "description": "Telegram chat ID"},
				"file_path": map[string]any{"type": "string", "description": "Path to file to send"},
				"caption":   map[string]any{"type": "string", "description": "File caption"},
			},
			"required": []string{"chat_id", "file_path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.SendFile(
				adapter.GetString(args, "chat_id"),
				adapter.GetString(args, "file_path"),
				adapter.GetString(args, "caption"))
		},
	})

	srv.Add(adapter.Tool{
		Name:        "telegram_get_chat_history",
		Description: "Get recent messages from a Telegram chat",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"chat_id": map[string]any{"type": "string", "description": "Telegram chat ID"},
				"limit":   map[string]any{"type": "integer", "description": "Maximum number of messages to retrieve"},
			},
			"required": []string{"chat_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.GetChatHistory(
				adapter.GetString(args, "chat_id"),
				adapter.GetInt(args, "limit", 10))
		},
	})

	registerMCP(srv.MCP(), svc)
}

func registerMCP(server *mcp.Server, svc *Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "telegram_send_message",
		Description: "Send a message to a Telegram chat",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input sendMessageInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.SendMessage(input.ChatID, input.Text, input.ReplyTo, input.ParseMode)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "telegram_get_chat",
		Description: "Get information about a Telegram chat",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input getChatInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.GetChat(input.ChatID)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "telegram_send_file",
		Description: "Send a file to a Telegram chat",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input sendFileInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		res, err := svc.SendFile(input.ChatID, input.FilePath, input.Caption)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "telegram_get_chat_history",
		Description: "Get recent messages from a Telegram chat",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input chatHistoryInput) (*mcp.CallToolResult, adapter.TextOutput, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 10
		}
		res, err := svc.GetChatHistory(input.ChatID, limit)
		if err != nil {
			return nil, adapter.TextOutput{}, err
		}
		return nil, asText(res), nil
	})
}

func asText(v any) adapter.TextOutput {
	data, err := json.Marshal(v)
	if err != nil {
		return adapter.TextOutput{}
	}
	return adapter.TextOutput{Text: string(data)}
}
