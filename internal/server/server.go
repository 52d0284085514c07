package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/arclight-ai/opsdeck/internal/ratelimit"
)

// Server is the dashboard HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Handlers  *Handlers
	Logger    *slog.Logger
	Limiter   ratelimit.Limiter // nil disables throttling
	MCPServer *mcpserver.MCPServer

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates an HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := cfg.Handlers

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	throttled := rateLimitMiddleware(limiter, cfg.Logger)

	mux := http.NewServeMux()

	// Report surface. Reads are snapshot-bound and cheap, no throttling.
	mux.HandleFunc("GET /v1/overview", h.HandleOverview)
	mux.HandleFunc("GET /v1/reports/{view}", h.HandleReport)
	mux.HandleFunc("GET /v1/runs", h.HandleRuns)

	// Ad-hoc queries and task runs are throttled per client.
	mux.Handle("POST /v1/query", throttled(http.HandlerFunc(h.HandleQuery)))
	mux.Handle("POST /v1/tasks", throttled(http.HandlerFunc(h.HandleTask)))

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no throttling).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
