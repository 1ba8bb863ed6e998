// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the loop implementation.
type Dependencies interface {
	StatsProvider

	// Status returns the last published payload; ok is false before Start.
	Status() (types.Status, bool)

	// Health reports loop and publisher health.
	Health() types.Health
}

// Server wires the operational HTTP routes.
type Server struct {
	healthHandler  *HealthHandler
	metricsHandler http.Handler
	statusHandler  *StatusHandler
	statsHandler   *StatsHandler
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		metricsHandler: NewMetricsHandler(),
		statusHandler:  NewStatusHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		logger:         logger.Get().Named("http"),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", instrument("healthz", s.logger, s.healthHandler.HandleHealth))
	mux.HandleFunc("/metrics", instrument("metrics", s.logger, s.metricsHandler.ServeHTTP))
	mux.HandleFunc("/status", instrument("status", s.logger, s.statusHandler.HandleStatus))
	mux.HandleFunc("/stats", instrument("stats", s.logger, s.statsHandler.HandleStats))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// allowGet rejects anything but GET and HEAD with 405.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	return false
}
