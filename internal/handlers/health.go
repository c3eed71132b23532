package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves GET /health
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a new HealthHandler. A nil checker always reports ok.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.checker.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckFunc adapts a ping function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
