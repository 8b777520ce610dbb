package health

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// HealthCheckHttpHandler answers with 200 and HealthyBody when the checker passes,
// and 503 with {"status": "unhealthy", "error": ...} when it fails.
type HealthCheckHttpHandler struct {
	checker     Checker
	healthyBody map[string]string
}

func NewHealthCheckHttpHandler(checker Checker, healthyStatus string) *HealthCheckHttpHandler {
	return &HealthCheckHttpHandler{
		checker:     checker,
		healthyBody: map[string]string{"status": healthyStatus},
	}
}

func (h *HealthCheckHttpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.checker.Check()
	if err == nil {
		log.Debug("Health check passed")
		writeJson(w, http.StatusOK, h.healthyBody)
		return
	}
	log.Warnf("Health check failed: %v", err)
	writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to write health check response: %v", err)
	}
}
