package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Checker defines the interface for checking service health.
type Checker interface {
	Ping(ctx context.Context) error
}

// AlwaysHealthy is the Checker for in-process backends that cannot become
// unreachable.
type AlwaysHealthy struct{}

// Ping always succeeds.
func (AlwaysHealthy) Ping(context.Context) error {
	return nil
}

// Handler handles health check operations.
type Handler struct {
	backend string
	store   Checker
}

// NewHandler creates a health handler reporting on the named counter store backend.
func NewHandler(backend string, store Checker) *Handler {
	return &Handler{backend: backend, store: store}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		Store   string `json:"store"`
	}
}

// Check reports "ok" while the counter store answers and "degraded" otherwise.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = "ok"
	resp.Body.Backend = h.backend

	if err := h.store.Ping(ctx); err != nil {
		resp.Body.Store = "unhealthy"
		resp.Body.Status = "degraded"
	} else {
		resp.Body.Store = "healthy"
	}

	return resp, nil
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Get(api, "/health", h.Check)
}
