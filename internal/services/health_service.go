package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// HubStats reports dashboard push connections
type HubStats interface {
	ClientCount() int
	GetHubMetrics() map[string]interface{}
}

// CheckFunc checks that a dependency answers
type CheckFunc func(ctx context.Context) error

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	gitCommit string
	hub       HubStats
	progress  *ProgressService
	jobAPI    CheckFunc
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// HealthOption configures a HealthService
type HealthOption func(*HealthService)

// WithBuildInfo sets the build metadata reported by Version
func WithBuildInfo(buildTime, gitCommit string) HealthOption {
	return func(hs *HealthService) {
		hs.buildTime = buildTime
		hs.gitCommit = gitCommit
	}
}

// WithJobAPICheck sets the readiness check for the job API
func WithJobAPICheck(check CheckFunc) HealthOption {
	return func(hs *HealthService) { hs.jobAPI = check }
}

// NewHealthService creates a new health service with injected dependencies
func NewHealthService(version string, hub HubStats, progress *ProgressService, logger *slog.Logger, opts ...HealthOption) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	hs := &HealthService{
		version:   version,
		hub:       hub,
		progress:  progress,
		startTime: time.Now(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(hs)
	}

	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("build_time", hs.buildTime),
		slog.String("git_commit", hs.gitCommit))
	return hs
}

// HealthCheck returns overall health status along with push statistics
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "HealthCheck: performing health check",
		slog.String("uptime", time.Since(hs.startTime).String()))

	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}
	if hs.hub != nil {
		status.Services["websocket"] = hs.hub.GetHubMetrics()
	}
	if hs.progress != nil {
		status.Services["progress"] = map[string]interface{}{
			"tracked_jobs": len(hs.progress.List()),
			"active_jobs":  hs.progress.ActiveCount(),
		}
	}
	return status
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"websocket": hs.checkWebSocketHealth(),
			"progress":  hs.checkProgressHealth(),
			"job_api":   hs.checkJobAPIHealth(ctx),
		},
	}

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.gitCommit != "" {
		result["git_commit"] = hs.gitCommit
	}
	return result
}

func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "websocket hub not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d dashboard clients connected", hs.hub.ClientCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

func (hs *HealthService) checkProgressHealth() ServiceHealth {
	if hs.progress == nil {
		return ServiceHealth{Status: "not_ready", Message: "progress service not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d jobs in progress", hs.progress.ActiveCount()),
	}
}

func (hs *HealthService) checkJobAPIHealth(ctx context.Context) ServiceHealth {
	if hs.jobAPI == nil {
		return ServiceHealth{Status: "ready", Message: "job api check not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := hs.jobAPI(ctx); err != nil {
		hs.logger.WarnContext(ctx, "Job API readiness check failed", slog.String("error", err.Error()))
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("Job API error: %v", err),
		}
	}
	return ServiceHealth{Status: "ready", Message: "Job API is reachable"}
}
