// Package health reports whether the masking server can still do its job:
// the store collaborator answers reads, and the MCP loop accepts tool calls.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the operational HTTP surface running next to the stdio MCP loop:
//
//   - /health  - store round-trip check with per-check detail
//   - /ready   - flips once the MCP server accepts tool calls
//   - /live    - process liveness
//   - /metrics - prometheus registry (when enabled)
//
// MCP traffic never touches this listener; it exists for probes and scrapers,
// which is why it binds localhost unless told otherwise.
type Server struct {
	checker        *Checker
	logger         *zap.Logger
	httpServer     *http.Server
	addr           string
	metricsEnabled bool

	// ready flips when the MCP stdio loop starts and stops serving
	ready atomic.Bool
}

// NewServer wires the endpoints onto bindAddr:port. An empty bindAddr stays
// on localhost; bind 0.0.0.0 only where probes come from outside the pod.
func NewServer(checker *Checker, logger *zap.Logger, port int, bindAddr string, metricsEnabled bool) *Server {
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	s := &Server{
		checker:        checker,
		logger:         logger,
		addr:           fmt.Sprintf("%s:%d", bindAddr, port),
		metricsEnabled: metricsEnabled,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/live", s.liveHandler)
	if metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// SetReady marks the MCP side as (un)able to accept tool calls.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start blocks serving the endpoints until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting health HTTP server",
		zap.String("addr", s.addr),
		zap.Bool("metrics_enabled", s.metricsEnabled),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

// Shutdown stops the listener, draining in-flight probe requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down health HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Report is the /health payload.
type Report struct {
	Status    Status    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
	Checks    []Check   `json:"checks"`
}

// healthHandler runs the full check suite. A degraded store still answers
// 200: mappings are readable, just slowly, and restarting the process would
// not help.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, checks := s.checker.CheckAll(ctx)

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(Report{
		Status:    status,
		CheckedAt: time.Now().UTC(),
		Checks:    checks,
	}); err != nil {
		s.logger.Error("Failed to encode health report", zap.Error(err))
	}
}

// readyHandler answers the readiness probe from the ready flag alone; the
// store is deliberately not consulted here, so a store outage takes /health
// red without churning the pod through restarts.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.ready.Load() {
		s.writeStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	s.writeStatus(w, http.StatusOK, "ready")
}

// liveHandler answers the liveness probe: responding at all is the check.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeStatus(w, http.StatusOK, "alive")
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
