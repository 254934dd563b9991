package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/localmcp/localmcp/internal/model"
)

// runModel serves the model gateway.
func runModel(cfg Config) {
	initLogging(false)

	port := cfg.ModelPort
	if p := getFlagValue("--port"); p != "" {
		port = p
	}

	backend := model.NewBackend(cfg.ModelBackend, cfg.ModelAPIKey, cfg.ModelID, cfg.ModelTimeout)
	gw := model.NewGateway(model.Config{
		ModelID:           cfg.ModelID,
		Device:            cfg.ModelDevice,
		Use4Bit:           cfg.Model4Bit,
		FlashAttention:    cfg.ModelFlashAttn,
		BetterTransformer: cfg.ModelBetterTransformer,
		GPUName:           cfg.GPUName,
		GPUMemoryTotal:    cfg.GPUMemoryTotal,
		Timeout:           cfg.ModelTimeout,
		MaxRetries:        cfg.ModelMaxRetries,
		RetryDelay:        cfg.ModelRetryDelay,
	}, backend)
	srv := model.NewServer(gw)

	slog.Info("model gateway",
		slog.String("model", cfg.ModelID),
		slog.String("backend", cfg.ModelBackend))

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A generate call may legitimately span several backend attempts.
	startHTTPServer(sigCtx, &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
	}, "model gateway")
}
