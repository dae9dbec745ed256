package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// CheckFunc checks one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker runs named dependency checks
type HealthChecker struct {
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewHealthChecker creates a checker with a per-check timeout of 2s
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		timeout: 2 * time.Second,
	}
}

// Register adds a named check
func (h *HealthChecker) Register(name string, check CheckFunc) *HealthChecker {
	h.checks[name] = check
	return h
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string, len(h.checks))
	overallStatus := "healthy"

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.checks[name](checkCtx)
		cancel()

		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}
