package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

// Readiness reports whether the model can serve predictions.
type Readiness interface {
	Ready(ctx context.Context) error
}

// HealthHandler handles liveness, readiness and metrics requests.
type HealthHandler struct {
	readiness Readiness
	logger    logger.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(r Readiness, l logger.Logger) *HealthHandler {
	return &HealthHandler{readiness: r, logger: l}
}

// HandleHealth handles GET|HEAD /healthz. It never touches the model.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("ok"))
		}
	default:
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleReady handles GET /readyz. It loads the model on first use.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}
	if err := h.readiness.Ready(r.Context()); err != nil {
		status, code := classify(err)
		if code != codeCancelled {
			status, code = http.StatusServiceUnavailable, codeModelUnavailable
		}
		h.logger.Warn(r.Context(), "not ready", logger.Error(err))
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

// MetricsHandler serves the Prometheus exposition from the service registry.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
