package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/localmcp/localmcp/internal/adapter"
)

// initLogging installs the default text logger. MCP stdio mode owns stdout,
// so logs move to stderr there.
func initLogging(stdio bool) {
	w := os.Stdout
	if stdio {
		w = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// runAdapter serves one adapter until interrupted, over stdio MCP or HTTP.
func runAdapter(srv *adapter.Server, port, label string) {
	if hasFlag("--stdio") {
		slog.Info("running in stdio mode")
		if err := srv.MCP().Run(context.Background(), &mcp.StdioTransport{}); err != nil {
			slog.Error("stdio server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if p := getFlagValue("--port"); p != "" {
		port = p
	}

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startHTTPServer(sigCtx, &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}, label)
}

// startHTTPServer runs srv in a goroutine and shuts it down when ctx is done.
// Returns after shutdown completes.
func startHTTPServer(ctx context.Context, srv *http.Server, label string) {
	go func() {
		slog.Info(label+" listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error(label+" failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down " + label)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx) //nolint:errcheck
	slog.Info(label + " stopped")
}
