// Package config provides configuration management for the masking MCP server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the MCP server
type Config struct {
	// Masking Engine Configuration
	TTLDays      int           `json:"ttl_days"`      // Mapping lifetime in days
	StoreTimeout time.Duration `json:"store_timeout"` // Bound on every store operation

	// Store Backend Configuration
	StoreBackend  string `json:"store_backend"` // memory or redis
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty"` // Not stored in files, from env only
	RedisDB       int    `json:"redis_db"`

	// Rate Limiting
	RateLimit       int  `json:"rate_limit"`       // requests per second
	RateLimitBurst  int  `json:"rate_limit_burst"` // burst size
	EnableRateLimit bool `json:"enable_rate_limit"`

	// Health/Metrics HTTP server
	HealthPort     int    `json:"health_port"` // 0 disables the HTTP server
	HealthBindAddr string `json:"health_bind_addr"`

	// Observability
	EnableTracing   bool `json:"enable_tracing"`   // Enable distributed tracing (default: true)
	EnableAuditLog  bool `json:"enable_audit_log"` // Enable audit logging (default: true)
	MetricsEndpoint bool `json:"metrics_endpoint"` // Enable Prometheus metrics endpoint (default: false)

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // json or console

	// Shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Load configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		TTLDays:         7,
		StoreTimeout:    2 * time.Second,
		StoreBackend:    BackendMemory,
		RedisAddr:       "localhost:6379",
		RateLimit:       100,
		RateLimitBurst:  20,
		EnableRateLimit: true,
		HealthPort:      0,
		HealthBindAddr:  "127.0.0.1",
		EnableTracing:   true,
		EnableAuditLog:  true,
		MetricsEndpoint: false,
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
	}

	// Try to load from config file if specified
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	// Prevent path traversal by checking for ".." components
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("MASKING_TTL_DAYS"); v != "" {
		var days int
		if _, err := fmt.Sscanf(v, "%d", &days); err == nil {
			cfg.TTLDays = days
		}
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StoreTimeout = d
		}
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		var db int
		if _, err := fmt.Sscanf(v, "%d", &db); err == nil {
			cfg.RedisDB = db
		}
	}
	if v := os.Getenv("MASKING_RATE_LIMIT"); v != "" {
		var limit int
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil {
			cfg.RateLimit = limit
		}
	}
	if v := os.Getenv("MASKING_RATE_LIMIT_BURST"); v != "" {
		var burst int
		if _, err := fmt.Sscanf(v, "%d", &burst); err == nil {
			cfg.RateLimitBurst = burst
		}
	}
	if v := os.Getenv("MASKING_ENABLE_RATE_LIMIT"); v != "" {
		cfg.EnableRateLimit = v == "true" || v == "1"
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.HealthPort = port
		}
	}
	if v := os.Getenv("HEALTH_BIND_ADDR"); v != "" {
		cfg.HealthBindAddr = v
	}
	if v := os.Getenv("ENABLE_TRACING"); v != "" {
		cfg.EnableTracing = v == "true" || v == "1"
	}
	if v := os.Getenv("ENABLE_AUDIT_LOG"); v != "" {
		cfg.EnableAuditLog = v == "true" || v == "1"
	}
	if v := os.Getenv("METRICS_ENDPOINT"); v != "" {
		cfg.MetricsEndpoint = v == "true" || v == "1"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
}

// TTL returns the mapping lifetime as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.TTLDays <= 0 {
		return errors.New("MASKING_TTL_DAYS must be positive")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	if c.RateLimit <= 0 && c.EnableRateLimit {
		return errors.New("rate_limit must be positive when rate limiting is enabled")
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", c.HealthPort)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Redact returns a copy of the config with sensitive data removed
func (c *Config) Redact() *Config {
	redacted := *c
	if redacted.RedisPassword != "" {
		redacted.RedisPassword = "***REDACTED***"
	}
	return &redacted
}
