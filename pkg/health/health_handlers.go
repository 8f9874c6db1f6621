package health

import (
	"encoding/json"
	"net/http"

	"github.com/dd0wney/cluso-replset/pkg/logging"
)

// HTTPHandler returns an HTTP handler for the health check endpoint.
// Degraded still answers 200.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check()
		code := http.StatusOK
		if response.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		hc.writeResponse(w, code, response)
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return hc.binaryHandler(hc.CheckReadiness)
}

// LivenessHandler returns an HTTP handler for liveness checks
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return hc.binaryHandler(hc.CheckLiveness)
}

// binaryHandler answers 200 only when every check is healthy
func (hc *HealthChecker) binaryHandler(run func() Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := run()
		code := http.StatusOK
		if response.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		hc.writeResponse(w, code, response)
	}
}

func (hc *HealthChecker) writeResponse(w http.ResponseWriter, code int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		hc.log().Debug("failed to write health response",
			logging.String("status", string(response.Status)), logging.Error(err))
	}
}
