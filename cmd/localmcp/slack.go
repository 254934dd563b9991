package main

import (
	"log/slog"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/localmcp/localmcp/internal/adapters/slackmcp"
)

// runSlack serves the Slack adapter. The bot token is read per request, so
// the server starts fine before the token file exists.
func runSlack(cfg Config) {
	initLogging(hasFlag("--stdio"))

	svc := slackmcp.New(cfg.SlackTokenFile)
	srv := adapter.New("slack-mcp", version)
	slackmcp.Register(srv, svc)
	slog.Info("Slack MCP server", slog.String("token_file", cfg.SlackTokenFile))

	runAdapter(srv, cfg.SlackPort, "Slack adapter")
}
