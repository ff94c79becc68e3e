package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"

	defaultCheckTimeout = 2 * time.Second
)

// healthResponse represents the JSON response for health checks.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports whether the server and its dependencies are usable.
type healthHandler struct {
	checks  []transportcore.HealthCheck
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a handler for the /health endpoint. Every check
// runs on each request; any failure turns the response into a 503.
// If logger is nil, it uses the default slog logger.
func NewHealthHandler(checks []transportcore.HealthCheck, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &healthHandler{
		checks:  checks,
		timeout: defaultCheckTimeout,
		logger:  logger,
	}
}

// ServeHTTP handles GET requests for health checks.
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	resp := healthResponse{Status: statusOK}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "check", check.Name, "error", err)
			resp.Status = statusUnavailable
			resp.Checks[check.Name] = err.Error()
			continue
		}
		resp.Checks[check.Name] = statusOK
	}

	status := http.StatusOK
	if resp.Status != statusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, status, resp)
}
