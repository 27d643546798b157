package api

import (
	"net/http"

	"github.com/standardbounties/standardbounties/internal/logging"
)

// handleMetrics handles GET /v1/metrics, serving the JSON metrics snapshot.
// The Prometheus exposition format is served separately at /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.metricsCollector == nil {
		s.writeError(w, http.StatusServiceUnavailable, "metrics collector not configured")
		return
	}

	// Keep the gauges current for the JSON view too
	s.metricsCollector.SetInstanceCount(s.factory.Count())
	s.metricsCollector.UpdateGoroutineCount()

	data, err := s.metricsCollector.GetMetricsJSON()
	if err != nil {
		logging.Error("failed to encode metrics",
			"error", err.Error(),
			logging.Component("api"))
		s.writeError(w, http.StatusInternalServerError, "failed to encode metrics")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
