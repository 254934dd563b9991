package main

import (
	"log/slog"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/localmcp/localmcp/internal/adapters/telegrammcp"
)

// runTelegram serves the Telegram adapter.
func runTelegram(cfg Config) {
	initLogging(hasFlag("--stdio"))

	svc := telegrammcp.New(cfg.TelegramTokenFile)
	srv := adapter.New("telegram-mcp", version)
	telegrammcp.Register(srv, svc)
	slog.Info("Telegram MCP server", slog.String("token_file", cfg.TelegramTokenFile))

	runAdapter(srv, cfg.TelegramPort, "Telegram adapter")
}
