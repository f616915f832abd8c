package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/vidq/internal/api/shared"
	"github.com/phrazzld/vidq/internal/service"
)

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) service.HealthReport
}

// HealthHandler serves the health endpoint.
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health reports queue and store reachability; 503 when either is down.
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, report)
}
