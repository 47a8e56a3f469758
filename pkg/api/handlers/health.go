package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zipcase/zipcase/pkg/kvstore"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the server reach its case-state store?
type HealthHandler struct {
	version string
	store   kvstore.Store
	started time.Time
}

// NewHealthHandler creates a new health handler.
//
// The store parameter may be nil, in which case readiness reports only
// process liveness.
func NewHealthHandler(version string, store kvstore.Store) *HealthHandler {
	return &HealthHandler{
		version: version,
		store:   store,
		started: time.Now(),
	}
}

// HealthResponse is the body of both health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
	Store   string `json:"store,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness handles GET /healthz - simple liveness probe.
//
// Returns 200 OK if the server process is running. Designed for
// Kubernetes liveness probes; it succeeds as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// Readiness handles GET /healthz/ready - readiness probe.
//
// Probes the case-state store with a read of a key that never exists;
// ErrNotFound proves the round trip worked. Returns 503 Service
// Unavailable when the store cannot be reached.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}

	if h.store == nil {
		WriteJSONOK(w, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, err := h.store.Get(ctx, kvstore.Key{PK: "HEALTHCHECK", SK: "PROBE"})
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		resp.Status = "unavailable"
		resp.Store = "unreachable"
		resp.Error = err.Error()
		WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Store = "ok"
	WriteJSONOK(w, resp)
}
