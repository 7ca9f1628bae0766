package sales

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/autohaus-erp/autohaus-erp/internal/platform/httpx"
)

// Handler exposes sales invoice endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales/invoices", h.handleCreateDraft)
	r.Get("/sales/invoices", h.handleListInvoices)
	r.Get("/sales/invoices/{invoiceID}", h.handleGetInvoice)
	r.Post("/sales/invoices/{invoiceID}/finalize", h.handleFinalize)
}

type draftLineRequest struct {
	CatalogItemID *int64  `json:"catalog_item_id"`
	Description   string  `json:"description"`
	Quantity      float64 `json:"quantity" validate:"gt=0"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0"`
	TaxRate       float64 `json:"tax_rate" validate:"gte=0,lte=100"`
}

type createDraftRequest struct {
	CustomerID    int64              `json:"customer_id" validate:"required"`
	VehicleID     *int64             `json:"vehicle_id"`
	Notes         string             `json:"notes"`
	InternalNotes string             `json:"internal_notes"`
	Lines         []draftLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceItemResponse struct {
	ID               int64   `json:"id"`
	CatalogItemID    *int64  `json:"catalog_item_id,omitempty"`
	Description      string  `json:"description"`
	Quantity         float64 `json:"quantity"`
	UnitPrice        float64 `json:"unit_price"`
	TaxRate          float64 `json:"tax_rate"`
	RevenueGroupName string  `json:"revenue_group_name,omitempty"`
}

type invoiceResponse struct {
	ID            int64                 `json:"id"`
	CustomerID    int64                 `json:"customer_id"`
	VehicleID     *int64                `json:"vehicle_id,omitempty"`
	InvoiceNumber *string               `json:"invoice_number"`
	Status        InvoiceStatus         `json:"status"`
	Date          string                `json:"date"`
	DueDate       string                `json:"due_date"`
	TotalNet      float64               `json:"total_net"`
	TotalTax      float64               `json:"total_tax"`
	TotalGross    float64               `json:"total_gross"`
	Notes         string                `json:"notes,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	Items         []invoiceItemResponse `json:"items,omitempty"`
}

func toInvoiceResponse(inv Invoice, items []InvoiceItem) invoiceResponse {
	resp := invoiceResponse{
		ID:            inv.ID,
		CustomerID:    inv.CustomerID,
		VehicleID:     inv.VehicleID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status,
		Date:          inv.Date.Format("2006-01-02"),
		DueDate:       inv.DueDate.Format("2006-01-02"),
		TotalNet:      inv.TotalNet,
		TotalTax:      inv.TotalTax,
		TotalGross:    inv.TotalGross,
		Notes:         inv.Notes,
		CreatedAt:     inv.CreatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, invoiceItemResponse{
			ID:               item.ID,
			CatalogItemID:    item.CatalogItemID,
			Description:      item.Description,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			TaxRate:          item.TaxRate,
			RevenueGroupName: item.RevenueGroupName,
		})
	}
	return resp
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateDraftInput{
		CustomerID:    req.CustomerID,
		VehicleID:     req.VehicleID,
		Notes:         req.Notes,
		InternalNotes: req.InternalNotes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, DraftLineInput{
			CatalogItemID: line.CatalogItemID,
			Description:   line.Description,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			TaxRate:       line.TaxRate,
		})
	}
	invoice, items, err := h.service.CreateDraft(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(invoice, items))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	status := InvoiceStatus(r.URL.Query().Get("status"))
	invoices, err := h.service.Invoices(r.Context(), status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, toInvoiceResponse(inv, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	invoice, items, err := h.service.Invoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice, items))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	invoice, items, err := h.service.Finalize(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("invoice finalized", "invoice_id", invoice.ID, "invoice_number", *invoice.InvoiceNumber)
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice, items))
}
