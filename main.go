// Package main implements the Masking MCP (Model Context Protocol) server.
//
// This server provides MCP tools for masking sensitive fields in JSON
// responses before they reach a model, recovering the original values in
// outbound request parameters, and cleaning up per-conversation mappings.
//
// The server communicates using the MCP protocol over stdio, making it
// compatible with Claude Desktop and other MCP clients.
//
// Configuration is provided through environment variables:
//   - STORE_BACKEND: "memory" (default) or "redis"
//   - REDIS_ADDR: Redis address when STORE_BACKEND=redis
//   - MASKING_TTL_DAYS: Mapping retention in days (default 7)
//   - ENVIRONMENT: (Optional) Set to "production" for production logging
//
// Example usage:
//
//	export STORE_BACKEND="redis"
//	export REDIS_ADDR="localhost:6379"
//	./masking-mcp-server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/config"
	"github.com/mergedao/masking-mcp-server/internal/server"
	"github.com/mergedao/masking-mcp-server/internal/store"
	"github.com/mergedao/masking-mcp-server/internal/tracing"
)

// Build information - set at build time via ldflags
// For GoReleaser builds: -X main.version={{.Version}} -X main.commit={{.Commit}} ...
// For manual builds: make build VERSION=0.5.0
var (
	version = "dev"     // e.g., "v0.4.0" or "dev"
	commit  = "unknown" // Git commit SHA
	builtBy = "manual"  // "goreleaser" or "manual"
)

// main is the entry point for the Masking MCP server.
// It initializes the server, loads configuration, and handles graceful shutdown.
func main() {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync() // Ignore error on cleanup
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting Masking MCP Server",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built_by", builtBy),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Any("config", cfg.Redact()),
	)

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "masking-mcp-server",
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown tracing", zap.Error(err))
		}
	}()

	// Build the mapping store for the configured backend
	mappingStore, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create mapping store", zap.Error(err))
	}

	// Create and start MCP server; the server owns the store from here on
	mcpServer, err := server.New(cfg, mappingStore, logger, version)
	if err != nil {
		logger.Fatal("Failed to create MCP server", zap.Error(err))
	}

	// Setup graceful shutdown with timeout
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Channel to signal server completion
	serverDone := make(chan error, 1)

	go func() {
		serverDone <- mcpServer.Start(ctx)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
		cancel()
		return
	}

	// Initiate graceful shutdown with timeout
	logger.Info("Initiating graceful shutdown", zap.Duration("timeout", cfg.ShutdownTimeout))
	cancel()

	// Wait for server to finish with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-serverDone:
		logger.Info("Server shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit",
			zap.Duration("timeout", cfg.ShutdownTimeout))
	}

	// Allow a brief moment for final cleanup
	time.Sleep(100 * time.Millisecond)
}

// newStore builds the mapping store named by STORE_BACKEND.
func newStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		defer cancel()
		logger.Info("Connecting to redis", zap.String("addr", cfg.RedisAddr))
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return store.NewMemoryStore(store.DefaultMaxEntries), nil
	}
}

// initLogger initializes and returns a zap logger.
// It creates a production logger if ENVIRONMENT=production, otherwise returns
// a development logger with more verbose output.
func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
