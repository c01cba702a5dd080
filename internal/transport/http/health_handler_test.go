package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrichdash/internal/services"
)

type stubHub struct{ clients int }

func (h stubHub) ClientCount() int { return h.clients }

func (h stubHub) GetHubMetrics() map[string]interface{} {
	return map[string]interface{}{"active_clients": h.clients}
}

func TestHealthHandler_Endpoints(t *testing.T) {
	svc := services.NewHealthService("1.2.3", stubHub{clients: 1}, nil, testLogger(),
		services.WithBuildInfo("2024-05-01", "abc123"))
	h := NewHealthHandler(svc, testLogger())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		field   string
		value   interface{}
	}{
		{"health", h.HealthCheck, http.StatusOK, "status", "ok"},
		{"liveness", h.LivenessCheck, http.StatusOK, "status", "alive"},
		{"version", h.Version, http.StatusOK, "git_commit", "abc123"},
		{"readiness without progress service", h.ReadinessCheck, http.StatusServiceUnavailable, "status", "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.value, decodeBody(t, rec)[tt.field])
		})
	}
}

func TestHealthHandler_ReadinessFollowsJobAPI(t *testing.T) {
	progress := services.NewProgressService(nil, nil, testLogger())

	up := NewHealthHandler(services.NewHealthService("1.2.3", stubHub{}, progress, testLogger(),
		services.WithJobAPICheck(func(context.Context) error { return nil })), testLogger())
	rec := httptest.NewRecorder()
	up.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewHealthHandler(services.NewHealthService("1.2.3", stubHub{}, progress, testLogger(),
		services.WithJobAPICheck(func(context.Context) error { return errors.New("connection refused") })), testLogger())
	rec = httptest.NewRecorder()
	down.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsHandler(t *testing.T) {
	prom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP enrichdash_up\n"))
	})
	h := NewMetricsHandler(prom, stubHub{clients: 3}, services.NewProgressService(nil, nil, testLogger()))

	rec := httptest.NewRecorder()
	h.Prometheus(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "enrichdash_up")

	rec = serve(mount("/api/metrics", h.Routes()), http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]interface{}{"active_clients": float64(3)}, body["websocket"])
	assert.Equal(t, map[string]interface{}{"tracked_jobs": float64(0), "active_jobs": float64(0)}, body["progress"])

	rec = httptest.NewRecorder()
	NewMetricsHandler(nil, nil, nil).Prometheus(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
