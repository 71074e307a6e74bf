// Package health aggregates component.HealthChecker results into one report
package health

import (
	"time"

	"github.com/stokry/vectra/component"
)

// Status overall or per-check health
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker alias of component.HealthChecker
type Checker = component.HealthChecker

// CheckResult result of one checker
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response aggregated report
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy reports whether every check passed
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsDegraded reports whether some check is degraded and none unhealthy
func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}
