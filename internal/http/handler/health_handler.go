package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sandeepkv93/commerce-auth-service/internal/http/response"
)

// Probe checks one dependency for readiness.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type probeResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type HealthHandler struct {
	probes  []Probe
	timeout time.Duration
}

func NewHealthHandler(timeout time.Duration, probes ...Probe) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{probes: probes, timeout: timeout}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	ready := true
	results := make([]probeResult, 0, len(h.probes))
	for _, p := range h.probes {
		res := probeResult{Name: p.Name, Healthy: true}
		if err := p.Check(ctx); err != nil {
			res.Healthy = false
			res.Error = err.Error()
			ready = false
		}
		results = append(results, res)
	}
	if !ready {
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
}
