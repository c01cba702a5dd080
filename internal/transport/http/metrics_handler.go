package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"enrichdash/internal/services"
)

// MetricsHandler serves Prometheus metrics and a JSON summary of push activity
type MetricsHandler struct {
	prometheus http.Handler
	hub        services.HubStats
	progress   *services.ProgressService
}

// NewMetricsHandler creates a new metrics handler. A nil prometheus handler
// disables the scrape endpoint.
func NewMetricsHandler(prometheus http.Handler, hub services.HubStats, progress *services.ProgressService) *MetricsHandler {
	return &MetricsHandler{prometheus: prometheus, hub: hub, progress: progress}
}

// Routes sets up the metrics routes
func (h *MetricsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetMetrics)
	return r
}

// Prometheus handles GET /metrics
func (h *MetricsHandler) Prometheus(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.NotFound(w, r)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// GetMetrics handles GET /api/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
	}
	if h.hub != nil {
		response["websocket"] = h.hub.GetHubMetrics()
	}
	if h.progress != nil {
		response["progress"] = map[string]interface{}{
			"tracked_jobs": len(h.progress.List()),
			"active_jobs":  h.progress.ActiveCount(),
		}
	}
	render.JSON(w, r, response)
}
