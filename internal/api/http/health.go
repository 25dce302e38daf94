package http

import (
	"net/http"

	"github.com/flapjack/flapjack/internal/api/respond"
	"github.com/flapjack/flapjack/internal/health"
)

// HealthHandler serves GET /api/health, reporting the cached service health
// flag maintained by a ServiceHealthChecker's background ticker.
type HealthHandler struct {
	Checker *health.ServiceHealthChecker
	Deps    []health.HealthChecker
}

func NewHealthHandler(checker *health.ServiceHealthChecker, deps ...health.HealthChecker) *HealthHandler {
	return &HealthHandler{Checker: checker, Deps: deps}
}

type depStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

type healthResponse struct {
	Healthy      bool        `json:"healthy"`
	Dependencies []depStatus `json:"dependencies"`
}

// CheckHealth handles GET /api/health.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	deps := make([]depStatus, 0, len(h.Deps))
	for _, d := range h.Deps {
		deps = append(deps, depStatus{Name: d.Name(), Healthy: d.IsHealthy()})
	}
	resp := healthResponse{Healthy: h.Checker.IsHealthy(), Dependencies: deps}
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	respond.WriteJSON(w, status, resp)
}
