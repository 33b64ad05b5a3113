package health

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// HTTPHandler serves the health endpoints off a manager.
type HTTPHandler struct {
	manager *Manager
	version string
	logger  *zap.Logger
}

// NewHTTPHandler builds the handler. version is reported verbatim in
// every health response.
func NewHTTPHandler(manager *Manager, version string, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{manager: manager, version: version, logger: logger}
}

// RegisterRoutes mounts the health endpoints on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /health/live", h.handleLiveness)
	mux.HandleFunc("GET /health/detailed", h.handleDetailed)
}

// handleHealth answers 200 while the service can serve queries and 503
// once a critical dependency is gone.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := h.manager.RunAll(r.Context())

	status := http.StatusOK
	if !overall.Ready {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, map[string]any{
		"status":  overall.Status.String(),
		"version": h.version,
	})
}

// handleLiveness answers 200 whenever the process is up. Probes use it
// to tell a wedged process from a slow dependency.
func (h *HTTPHandler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "alive",
		"version": h.version,
	})
}

// handleDetailed reports per-component results for operators.
func (h *HTTPHandler) handleDetailed(w http.ResponseWriter, r *http.Request) {
	overall := h.manager.RunAll(r.Context())

	status := http.StatusOK
	if !overall.Ready {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, map[string]any{
		"status":     overall.Status.String(),
		"version":    h.version,
		"components": overall.Components,
	})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode health response", zap.Error(err))
	}
}
