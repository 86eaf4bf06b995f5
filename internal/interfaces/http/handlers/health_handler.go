package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/LexAlert/pkg/types/common"
)

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function to HealthChecker.
type CheckFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Component }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	timeout  time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		timeout:  5 * time.Second,
	}
}

// LivenessResponse is the response for liveness probe.
type LivenessResponse struct {
	Status  common.HealthStatus `json:"status"`
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
}

// ReadinessResponse is the response for readiness probe.
type ReadinessResponse struct {
	Status     common.HealthStatus      `json:"status"`
	Components []common.ComponentHealth `json:"components,omitempty"`
}

// Liveness handles GET /healthz. It never touches dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  common.HealthUp,
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz. Any failing dependency yields 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	components := h.checkAll(ctx)
	resp := ReadinessResponse{Status: common.HealthUp, Components: components}
	for _, c := range components {
		if c.Status != common.HealthUp {
			resp.Status = common.HealthDown
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// checkAll runs the checkers concurrently, preserving their order.
func (h *HealthHandler) checkAll(ctx context.Context) []common.ComponentHealth {
	results := make([]common.ComponentHealth, len(h.checkers))
	var wg sync.WaitGroup
	for i, checker := range h.checkers {
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := c.Check(ctx)
			ch := common.ComponentHealth{Name: c.Name(), Status: common.HealthUp, Latency: time.Since(start)}
			if err != nil {
				ch.Status = common.HealthDown
				ch.Message = err.Error()
			}
			results[i] = ch
		}(i, checker)
	}
	wg.Wait()
	return results
}
