// Package main implements the log ratio server.
//
// The server analyzes plain-text log files in a directory, learns the expected
// error-to-session ratio with a ridge regression model and raises alerts when a
// file's ratio exceeds the prediction. Analytics are exposed as MCP tools over
// stdio; with LOGS_TRANSPORT=none only the alert scheduler and the health
// server run.
//
// Configuration is provided through environment variables:
//   - LOGS_DIR: directory holding the log files (default "uploads")
//   - LOGS_MODEL_PATH: where the trained model is stored (default "model.json")
//   - LOGS_CHECK_INTERVAL: time between alert checks (default 5m)
//   - LOGS_SMTP_HOST, LOGS_WEBHOOK_URL, LOGS_NATS_URL: alert channels (optional)
//   - CONFIG_FILE: JSON file with the same settings (optional)
//   - ENVIRONMENT: (Optional) Set to "production" for production logging
//
// Example usage:
//
//	export LOGS_DIR=/var/log/app
//	export LOGS_WEBHOOK_URL="https://hooks.example.com/alerts"
//	./logs-ratio-server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tareqmamari/logs-ratio-server/internal/config"
	"github.com/tareqmamari/logs-ratio-server/internal/server"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// Build information - set at build time via ldflags
var (
	version = "dev"     // e.g., "v0.1.0" or "dev"
	commit  = "unknown" // Git commit SHA
	builtBy = "manual"  // "goreleaser" or "manual"
)

func main() {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync() // Ignore error on cleanup
	}()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting log ratio server",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built_by", builtBy),
		zap.Any("config", cfg.Redact()),
	)

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "logs-ratio-server",
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	srv, err := server.New(cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
		return
	}

	logger.Info("Initiating graceful shutdown", zap.Duration("timeout", cfg.ShutdownTimeout))

	select {
	case <-serverDone:
		logger.Info("Server shutdown complete")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("Shutdown timeout exceeded, forcing exit",
			zap.Duration("timeout", cfg.ShutdownTimeout))
	}
}

// initLogger builds a zap logger writing to stderr, since stdout carries the
// MCP transport. ENVIRONMENT=production selects the production preset.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if os.Getenv("ENVIRONMENT") == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.LogFormat == "console" || cfg.LogFormat == "json" {
		zcfg.Encoding = cfg.LogFormat
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	return zcfg.Build()
}
