// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// HealthProvider reports service health.
type HealthProvider interface {
	Health() types.Health
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	provider HealthProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(provider HealthProvider) *HealthHandler {
	return &HealthHandler{provider: provider}
}

// HandleHealth handles GET /healthz: 200 while healthy, 503 when degraded.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	health := h.provider.Health()
	status := http.StatusOK
	if health.Status != types.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// NewMetricsHandler serves the custom Prometheus registry.
func NewMetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
