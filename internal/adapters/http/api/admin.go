package api

import (
	"context"
	"net/http"

	"github.com/okian/motionscore/pkg/logger"
)

// Reloader swaps in a freshly loaded model.
type Reloader interface {
	Reload(ctx context.Context) error
	StatsProvider
}

// AdminHandler handles operator requests.
type AdminHandler struct {
	reloader Reloader
	logger   logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(r Reloader, l logger.Logger) *AdminHandler {
	return &AdminHandler{reloader: r, logger: l}
}

// HandleReload handles POST /admin/reload requests.
func (h *AdminHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := h.reloader.Reload(r.Context()); err != nil {
		status, code := classify(err)
		h.logger.Error(r.Context(), "model reload failed", logger.String("code", code), logger.Error(err))
		writeError(w, status, code, err)
		return
	}
	stats := h.reloader.GetStats()
	h.logger.Info(r.Context(), "model reloaded", logger.String("digest", stats.ModelDigest))
	writeJSON(w, http.StatusOK, stats)
}
