package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/localmcp/localmcp/internal/dashboard"
	"github.com/localmcp/localmcp/internal/probe"
)

// runDashboard serves the monitoring dashboard and its status stream.
func runDashboard(cfg Config) {
	initLogging(false)

	port := cfg.DashboardPort
	if p := getFlagValue("--port"); p != "" {
		port = p
	}

	metrics := dashboard.NewMetrics()
	prober := probe.New(cfg.ProbeTimeout)
	hub := dashboard.NewHub(cfg.ConfigPath, prober, cfg.StatusInterval, metrics)
	srv := dashboard.New(cfg.ConfigPath, prober, hub, metrics)

	slog.Info("dashboard server",
		slog.String("config", cfg.ConfigPath),
		slog.Duration("interval", cfg.StatusInterval))

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go hub.Run(sigCtx)

	startHTTPServer(sigCtx, &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}, "dashboard")
}
