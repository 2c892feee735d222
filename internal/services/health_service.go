package services

import (
	"context"
	"log/slog"
	"time"

	"licensegate/internal/store"
)

// HealthStatus is the aggregate health report for the license server
type HealthStatus struct {
	Status    string            `json:"status"` // healthy|degraded
	Version   string            `json:"version"`
	BuildTime string            `json:"build_time,omitempty"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthService reports liveness and readiness of the server's dependencies
type HealthService struct {
	store     store.Store
	version   string
	buildTime string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service
func NewHealthService(st store.Store, version, buildTime string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		store:     st,
		version:   version,
		buildTime: buildTime,
		startedAt: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Check runs the dependency probes and assembles the health report
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Version:   s.version,
		BuildTime: s.buildTime,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]string),
		Timestamp: time.Now(),
	}

	// A cheap read doubles as the store probe
	if _, err := s.store.List(ctx); err != nil {
		s.logger.WarnContext(ctx, "store health check failed", slog.String("error", err.Error()))
		status.Status = "degraded"
		status.Checks["store"] = "unavailable"
	} else {
		status.Checks["store"] = "ok"
	}

	return status
}

// Ready reports whether the server should receive traffic
func (s *HealthService) Ready(ctx context.Context) bool {
	return s.Check(ctx).Status == "healthy"
}
