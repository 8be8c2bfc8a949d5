package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/store"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Checker performs health checks
type Checker struct {
	store  store.Store
	logger *zap.Logger
}

// New creates a new health checker
func New(s store.Store, logger *zap.Logger) *Checker {
	return &Checker{
		store:  s,
		logger: logger,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := []Check{
		c.checkStore(ctx),
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

// checkStore verifies the store collaborator answers reads. Without the
// store no mapping can be written or recovered, so this is the one
// dependency that matters.
func (c *Checker) checkStore(ctx context.Context) Check {
	start := time.Now()
	check := Check{
		Name:      "store",
		Timestamp: start,
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// A read of a key that never exists exercises the full round trip;
	// ErrNotFound is the healthy answer.
	_, err := c.store.Get(checkCtx, "healthcheck:probe")
	check.Duration = time.Since(start)

	switch {
	case err == nil || err == store.ErrNotFound:
		if check.Duration > 1*time.Second {
			check.Status = StatusDegraded
			check.Message = "Store responding slowly"
		} else {
			check.Status = StatusHealthy
			check.Message = "Store reachable"
		}
		c.logger.Debug("Health check passed: store",
			zap.Duration("duration", check.Duration),
		)
	default:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Store unreachable: %v", err)
		c.logger.Error("Health check failed: store",
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}
