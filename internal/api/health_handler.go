package api

import (
	"net/http"
	"time"
)

// startTime records when the server package was initialized for uptime calculation.
var startTime = time.Now()

// HealthResponse is the JSON response for the /health endpoint
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	InstanceCount int    `json:"instance_count"`
	Version       string `json:"version"`
	Reason        string `json:"reason,omitempty"`
}

// handleHealthCheck handles GET /health for load balancer health probes.
// No authentication is required.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Reason:  "server not running",
			Version: "1.0.0",
		})
		return
	}

	var uptime string
	if s.metricsCollector != nil {
		uptime = s.metricsCollector.GetMetrics().Uptime
	} else {
		uptime = time.Since(startTime).Round(time.Second).String()
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Uptime:        uptime,
		InstanceCount: s.factory.Count(),
		Version:       "1.0.0",
	})
}
