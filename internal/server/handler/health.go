package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check is a named dependency probe, e.g. a database or redis ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks  []Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler running checks on every request.
func NewHealthHandler(logger *slog.Logger, checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, logger: logHandler(logger, "health")}
}

// HealthCheck responds with the status of every dependency. Any failing
// check turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("check", c.Name),
				slog.String("error", err.Error()),
			)
			deps[c.Name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
