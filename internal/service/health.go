package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/vidq/internal/queue"
	"github.com/phrazzld/vidq/internal/store"
)

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	ComponentOK          = "ok"
	ComponentUnavailable = "unavailable"
)

// HealthReport describes the reachability of the queue and the store.
type HealthReport struct {
	Status      string `json:"status"`
	Queue       string `json:"queue"`
	Store       string `json:"store"`
	QueueLength *int64 `json:"queue_length,omitempty"`
}

// Healthy reports whether every dependency is reachable.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// HealthChecker probes the service dependencies.
type HealthChecker struct {
	store     store.TaskStore
	transport queue.Transport
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHealthChecker creates a HealthChecker whose probes are each bounded by timeout.
func NewHealthChecker(taskStore store.TaskStore, transport queue.Transport, timeout time.Duration, logger *slog.Logger) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		store:     taskStore,
		transport: transport,
		timeout:   timeout,
		logger:    logger.With("component", "health"),
	}
}

// Check probes the queue and the store.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{Status: StatusHealthy, Queue: ComponentOK, Store: ComponentOK}

	if err := h.transport.Ping(ctx); err != nil {
		h.logger.Warn("queue health check failed", "error", err)
		report.Queue = ComponentUnavailable
		report.Status = StatusDegraded
	} else if n, err := h.transport.Len(ctx); err == nil {
		report.QueueLength = &n
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store health check failed", "error", err)
		report.Store = ComponentUnavailable
		report.Status = StatusDegraded
	}
	return report
}
