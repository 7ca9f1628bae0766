package finance

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/autohaus-erp/autohaus-erp/internal/platform/httpx"
)

// Handler exposes finance settings and revenue group endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the finance handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/finance/settings", h.handleGetSettings)
	r.Patch("/finance/settings", h.handlePatchSettings)
	r.Get("/finance/revenue-groups", h.handleListRevenueGroups)
	r.Post("/finance/revenue-groups", h.handleCreateRevenueGroup)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

type patchSettingsRequest struct {
	FiscalYearStartMonth *int            `json:"fiscal_year_start_month"`
	LockDate             json.RawMessage `json:"lock_date"`
	NextInvoiceNumber    *int64          `json:"next_invoice_number"`
	InvoicePrefix        *string         `json:"invoice_prefix"`
}

func (h *Handler) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var req patchSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	patch := SettingsPatch{
		FiscalYearStartMonth: req.FiscalYearStartMonth,
		NextInvoiceNumber:    req.NextInvoiceNumber,
		InvoicePrefix:        req.InvoicePrefix,
	}
	// lock_date distinguishes absent (unchanged), null (clear) and a date.
	if len(req.LockDate) > 0 {
		if string(req.LockDate) == "null" {
			patch.ClearLockDate = true
		} else {
			var raw string
			if err := json.Unmarshal(req.LockDate, &raw); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid lock_date")
				return
			}
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lock_date must be YYYY-MM-DD")
				return
			}
			patch.LockDate = &parsed
		}
	}
	settings, err := h.service.UpdateSettings(r.Context(), patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) handleListRevenueGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.RevenueGroups(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

type createRevenueGroupRequest struct {
	Name          string  `json:"name" validate:"required"`
	TaxRate       float64 `json:"tax_rate" validate:"gte=0,lte=100"`
	AccountNumber string  `json:"account_number" validate:"required"`
	IsDefault     bool    `json:"is_default"`
}

func (h *Handler) handleCreateRevenueGroup(w http.ResponseWriter, r *http.Request) {
	var req createRevenueGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	group, err := h.service.CreateRevenueGroup(r.Context(), RevenueGroup{
		Name:          req.Name,
		TaxRate:       req.TaxRate,
		AccountNumber: req.AccountNumber,
		IsDefault:     req.IsDefault,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, group)
}
