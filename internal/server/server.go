// Package server provides the MCP server implementation for the masking service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mergedao/masking-mcp-server/internal/audit"
	"github.com/mergedao/masking-mcp-server/internal/config"
	"github.com/mergedao/masking-mcp-server/internal/health"
	"github.com/mergedao/masking-mcp-server/internal/masking"
	"github.com/mergedao/masking-mcp-server/internal/metrics"
	"github.com/mergedao/masking-mcp-server/internal/store"
	"github.com/mergedao/masking-mcp-server/internal/tools"
	"github.com/mergedao/masking-mcp-server/internal/tracing"
)

// Server represents the MCP server
type Server struct {
	mcpServer    *mcp.Server
	store        store.Store
	engine       *masking.Engine
	auditLog     *audit.Logger
	config       *config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	rateLimiter  *rate.Limiter
	healthServer *health.Server
	version      string
}

// New creates a new MCP server instance. The mapping store is injected so
// main can choose the backend (memory or Redis) and own its lifecycle.
func New(cfg *config.Config, mappingStore store.Store, logger *zap.Logger, version string) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Masking MCP Server",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	metricsTracker := metrics.New(logger)

	engine := masking.NewEngine(mappingStore, masking.Options{
		TTL:          cfg.TTL(),
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
		Metrics:      metricsTracker,
	})

	auditLog := audit.NewLogger(logger, cfg.EnableAuditLog)

	var rateLimiter *rate.Limiter
	if cfg.EnableRateLimit {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}

	s := &Server{
		mcpServer:   mcpServer,
		store:       mappingStore,
		engine:      engine,
		auditLog:    auditLog,
		config:      cfg,
		logger:      logger,
		metrics:     metricsTracker,
		rateLimiter: rateLimiter,
		version:     version,
	}

	// Create health server if port is configured (port > 0)
	if cfg.HealthPort > 0 {
		healthChecker := health.New(mappingStore, logger)
		s.healthServer = health.NewServer(healthChecker, logger, cfg.HealthPort, cfg.HealthBindAddr, cfg.MetricsEndpoint)
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	for _, t := range tools.AllTools(s.engine, s.auditLog, s.logger) {
		s.registerTool(t)
	}
	s.logger.Info("Registered all MCP tools")
}

// registerTool is a helper to register a tool with proper error handling.
// It accepts any type that implements the tools.Tool interface.
func (s *Server) registerTool(t tools.Tool) {
	toolName := t.Name()

	mcpTool := &mcp.Tool{
		Name:        toolName,
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Annotations: t.Annotations(),
	}

	// Create handler that calls the tool's Execute method with rate limiting
	// and metrics tracking
	handler := func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		if s.rateLimiter != nil && !s.rateLimiter.Allow() {
			s.metrics.RecordRateLimitHit()
			s.metrics.RecordToolExecution(toolName, false, time.Since(start))
			return tools.NewToolResultError("Rate limit exceeded, retry shortly"), nil
		}

		var args map[string]interface{}
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				s.metrics.RecordToolExecution(toolName, false, time.Since(start))
				return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}

		// Bound each call by the tool's own timeout so a stuck store cannot
		// wedge the stdio loop
		execCtx := ctx
		if timeout := t.DefaultTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		execCtx, span := tracing.ToolSpan(execCtx, toolName)
		defer span.End()

		result, err := t.Execute(execCtx, args)
		success := err == nil && (result == nil || !result.IsError)
		if success {
			tracing.SetSuccess(span)
		} else {
			tracing.RecordError(span, err)
		}
		s.metrics.RecordToolExecution(toolName, success, time.Since(start))

		return result, err
	}

	s.mcpServer.AddTool(mcpTool, handler)
	s.logger.Debug("Registered tool", zap.String("tool", mcpTool.Name))
}

// Start starts the MCP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server")

	// Start health HTTP server in background if configured
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.logger.Error("Health server error", zap.Error(err))
			}
		}()
		// Mark as ready once server is starting
		s.healthServer.SetReady(true)
	}

	defer func() {
		// Log final metrics on shutdown
		s.metrics.LogStats()

		// Shutdown health server
		if s.healthServer != nil {
			s.healthServer.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("Failed to shutdown health server", zap.Error(err))
			}
		}

		if err := s.store.Close(); err != nil {
			s.logger.Error("Failed to close mapping store", zap.Error(err))
		}
	}()

	// Start serving using stdio transport
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// GetMetrics returns the server's metrics tracker for external access
func (s *Server) GetMetrics() *metrics.Metrics {
	return s.metrics
}

// GetAuditLog returns the server's audit logger for external access
func (s *Server) GetAuditLog() *audit.Logger {
	return s.auditLog
}
