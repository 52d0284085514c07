package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arclight-ai/opsdeck/internal/agent"
	"github.com/arclight-ai/opsdeck/internal/analytics"
	"github.com/arclight-ai/opsdeck/internal/config"
	"github.com/arclight-ai/opsdeck/internal/emitter"
	"github.com/arclight-ai/opsdeck/internal/mcp"
	"github.com/arclight-ai/opsdeck/internal/ratelimit"
	"github.com/arclight-ai/opsdeck/internal/server"
	"github.com/arclight-ai/opsdeck/internal/store"
	"github.com/arclight-ai/opsdeck/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("OPSDECK_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("opsdeck starting", "version", version, "port", cfg.Port, "log_path", cfg.LogPath)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		return fmt.Errorf("telemetry instruments: %w", err)
	}

	// Run log store and analytics service.
	st := store.New(cfg.LogPath, logger)
	svc := analytics.NewService(st, logger)

	// Task agent. Without a token the agent serves canned responses, which
	// keeps local demos working with no credentials.
	ag := agent.New(cfg.InferenceBaseURL, cfg.InferenceToken, cfg.InferenceModel, logger)
	if ag.Offline() {
		logger.Info("agent: offline mode (no HF_TOKEN), serving mock responses")
	} else {
		logger.Info("agent: online", "model", cfg.InferenceModel)
	}

	em := emitter.New(st, cfg.AgentVersion, cfg.PromptVersion, logger)

	// MCP server, mounted on the HTTP server at /mcp.
	mcpSrv := mcp.New(svc, ag, em, logger)

	limiter := ratelimit.NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	logger.Info("rate limiting: per-client token bucket",
		"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)

	handlers := server.NewHandlers(server.HandlersDeps{
		Analytics:     svc,
		Agent:         ag,
		Emitter:       em,
		Instruments:   instruments,
		Logger:        logger,
		Version:       version,
		LogPath:       cfg.LogPath,
		MaxBodyBytes:  cfg.MaxRequestBodyBytes,
		MaxAuditLimit: cfg.MaxAuditLimit,
	})

	srv := server.New(server.ServerConfig{
		Handlers:     handlers,
		Logger:       logger,
		Limiter:      limiter,
		MCPServer:    mcpSrv.MCPServer(),
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("opsdeck stopped")
	return nil
}
