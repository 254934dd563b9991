package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/localmcp/localmcp/internal/adapter"
	"github.com/localmcp/localmcp/internal/adapters/sqlite"
)

// runSQL serves the SQLite adapter.
func runSQL(cfg Config) {
	initLogging(hasFlag("--stdio"))

	svc, err := sqlite.Open(context.Background(), cfg.SQLDB)
	if err != nil {
		slog.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer svc.Close()

	srv := adapter.New("sql-mcp", version)
	sqlite.Register(srv, svc)
	slog.Info("SQL MCP server", slog.String("db", cfg.SQLDB))

	runAdapter(srv, cfg.SQLPort, "SQL adapter")
}
