package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Rooms  interface{}       `json:"rooms,omitempty"`
}

// HealthHandler handles the health endpoint
type HealthHandler struct {
	checks map[string]HealthCheck
	stats  func(ctx context.Context) (interface{}, error)
}

// NewHealthHandler creates a health handler. stats may be nil.
func NewHealthHandler(checks map[string]HealthCheck, stats func(ctx context.Context) (interface{}, error)) *HealthHandler {
	return &HealthHandler{checks: checks, stats: stats}
}

// Health handles GET /health
//
//	@Summary	Liveness and dependency status
//	@Tags		ops
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.stats != nil {
		if stats, err := h.stats(ctx); err == nil {
			resp.Rooms = stats
		}
	}
	writeJSON(w, status, resp)
}
