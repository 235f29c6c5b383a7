package service

import (
	"context"
	"database/sql"
	"time"
)

// Health status constants
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusUnhealthy    = "unhealthy"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus represents the overall health status of the application
type HealthStatus struct {
	Status          string            `json:"status"`
	Services        map[string]string `json:"services"`
	ActiveCampaigns int               `json:"active_campaigns"`
	Timestamp       time.Time         `json:"timestamp"`
	Version         string            `json:"version,omitempty"`
}

// Pinger is implemented by the Redis sink
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStatus is implemented by queue.Connection
type QueueStatus interface {
	IsConnected() bool
}

// HealthDeps lists the dependencies to probe; nil ones are not reported
type HealthDeps struct {
	DB        *sql.DB
	Queue     QueueStatus
	Redis     Pinger
	Campaigns *CampaignService
}

// HealthChecker handles health check operations
type HealthChecker struct {
	deps    HealthDeps
	version string
}

// NewHealthService creates a new HealthChecker instance
func NewHealthService(deps HealthDeps, version string) *HealthChecker {
	return &HealthChecker{
		deps:    deps,
		version: version,
	}
}

// checkDatabase verifies database connectivity with a timeout
func (h *HealthChecker) checkDatabase(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.deps.DB.PingContext(ctx); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

func (h *HealthChecker) checkQueue() string {
	if !h.deps.Queue.IsConnected() {
		return StatusDisconnected
	}
	return StatusConnected
}

func (h *HealthChecker) checkRedis(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.deps.Redis.Ping(ctx); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// determineOverallStatus: without the database progress cannot be saved,
// every other dependency only degrades the service
func (h *HealthChecker) determineOverallStatus(services map[string]string) string {
	if services["database"] == StatusDisconnected {
		return StatusUnhealthy
	}

	for _, status := range services {
		if status == StatusDisconnected {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

// CheckHealth performs health checks on all dependencies and returns the overall status
func (h *HealthChecker) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	services := map[string]string{}
	if h.deps.DB != nil {
		services["database"] = h.checkDatabase(ctx)
	}
	if h.deps.Queue != nil {
		services["queue"] = h.checkQueue()
	}
	if h.deps.Redis != nil {
		services["redis"] = h.checkRedis(ctx)
	}

	active := 0
	if h.deps.Campaigns != nil {
		for _, status := range h.deps.Campaigns.ListCampaigns(ctx) {
			if !status.State.IsTerminal() {
				active++
			}
		}
	}

	return &HealthStatus{
		Status:          h.determineOverallStatus(services),
		Services:        services,
		ActiveCampaigns: active,
		Timestamp:       time.Now().UTC(),
		Version:         h.version,
	}, nil
}
