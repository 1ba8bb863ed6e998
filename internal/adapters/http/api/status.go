package api

import (
	"net/http"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
)

// StatusProvider returns the last published payload.
type StatusProvider interface {
	Status() (types.Status, bool)
}

// StatusHandler serves the latest status event, the same JSON subscribers got.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// HandleStatus handles GET /status. It answers 204 until the game starts.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	status, ok := h.provider.Status()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
