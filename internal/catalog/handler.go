package catalog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autohaus-erp/autohaus-erp/internal/platform/httpx"
)

// Handler exposes availability lookups.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inventory/availability/{sku}", h.handleAvailability)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sku required")
		return
	}
	avail, err := h.service.CheckAvailability(r.Context(), sku)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
}
