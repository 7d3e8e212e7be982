package api

import "net/http"

// RootMessage is the liveness message of GET {api}.
const RootMessage = "UniTry backend is running"

// HealthHandler handles liveness requests.
type HealthHandler struct {
	projectName string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(projectName string) *HealthHandler {
	return &HealthHandler{projectName: projectName}
}

// HandleRoot handles GET {api} requests.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage, "project": h.projectName})
}

// HandleTryOnHealth handles GET {api}/try-on/health requests.
func (h *HealthHandler) HandleTryOnHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
