package purchasing

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

// Handler exposes purchasing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-orders", h.handleCreateOrder)
	r.Get("/purchase-orders", h.handleListOrders)
	r.Get("/purchase-orders/{orderID}", h.handleGetOrder)
	r.Post("/purchase-orders/{orderID}/receive", h.handleReceive)

	r.Post("/purchase-invoices", h.handleCreateInvoice)
	r.Get("/purchase-invoices", h.handleListInvoices)
	r.Get("/purchase-invoices/unbilled/{vendorID}", h.handleUnbilled)
	r.Get("/purchase-invoices/{invoiceID}", h.handleGetInvoice)
	r.Patch("/purchase-invoices/{invoiceID}/post", h.handlePostInvoice)
}

type orderLineRequest struct {
	ItemID   int64   `json:"catalog_item_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
}

type createOrderRequest struct {
	VendorID int64              `json:"vendor_id" validate:"required"`
	Lines    []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type orderItemResponse struct {
	ID               int64   `json:"id"`
	ItemID           int64   `json:"catalog_item_id"`
	Quantity         float64 `json:"quantity"`
	UnitCost         float64 `json:"unit_cost"`
	QuantityReceived float64 `json:"quantity_received"`
	QuantityInvoiced float64 `json:"quantity_invoiced"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	VendorID    int64               `json:"vendor_id"`
	OrderNumber string              `json:"order_number"`
	Status      OrderStatus         `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	Items       []orderItemResponse `json:"items,omitempty"`
}

func toOrderResponse(o Order, items []OrderItem) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		VendorID:    o.VendorID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:               item.ID,
			ItemID:           item.ItemID,
			Quantity:         item.Quantity,
			UnitCost:         item.UnitCost,
			QuantityReceived: item.QuantityReceived,
			QuantityInvoiced: item.QuantityInvoiced,
		})
	}
	return resp
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{VendorID: req.VendorID}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, OrderLineInput{ItemID: line.ItemID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}
	order, items, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order, items))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	// Default view shows open orders; ?filter=all includes completed ones.
	onlyOpen := r.URL.Query().Get("filter") != "all"
	orders, err := h.service.Orders(r.Context(), onlyOpen)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, items, err := h.service.Order(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order, items))
}

type receiveLineRequest struct {
	ItemID   int64   `json:"catalog_item_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type receiveRequest struct {
	Receipts []receiveLineRequest `json:"receipts" validate:"required,min=1,dive"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipts := make([]ReceiptInput, 0, len(req.Receipts))
	for _, line := range req.Receipts {
		receipts = append(receipts, ReceiptInput{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	order, items, err := h.service.ReceiveItems(r.Context(), id, receipts)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order, items))
}

type invoiceLineRequest struct {
	OrderItemID *int64  `json:"purchase_order_item_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type createInvoiceRequest struct {
	VendorID            int64                `json:"vendor_id" validate:"required"`
	VendorInvoiceNumber string               `json:"vendor_invoice_number" validate:"required"`
	InvoiceDate         string               `json:"invoice_date" validate:"required"`
	DueDate             string               `json:"due_date" validate:"required"`
	Lines               []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceLineResponse struct {
	ID          int64   `json:"id"`
	OrderItemID *int64  `json:"purchase_order_item_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

type invoiceResponse struct {
	ID                  int64                 `json:"id"`
	VendorID            int64                 `json:"vendor_id"`
	VendorInvoiceNumber string                `json:"vendor_invoice_number"`
	InvoiceDate         string                `json:"invoice_date"`
	DueDate             string                `json:"due_date"`
	Status              InvoiceStatus         `json:"status"`
	TotalAmount         float64               `json:"total_amount"`
	CreatedAt           time.Time             `json:"created_at"`
	Lines               []invoiceLineResponse `json:"lines,omitempty"`
}

func toInvoiceResponse(inv Invoice, lines []InvoiceLine) invoiceResponse {
	resp := invoiceResponse{
		ID:                  inv.ID,
		VendorID:            inv.VendorID,
		VendorInvoiceNumber: inv.VendorInvoiceNumber,
		InvoiceDate:         inv.InvoiceDate.Format("2006-01-02"),
		DueDate:             inv.DueDate.Format("2006-01-02"),
		Status:              inv.Status,
		TotalAmount:         inv.TotalAmount,
		CreatedAt:           inv.CreatedAt,
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, invoiceLineResponse{
			ID:          line.ID,
			OrderItemID: line.OrderItemID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return resp
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	invoiceDate, err := time.Parse("2006-01-02", req.InvoiceDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice_date must be YYYY-MM-DD")
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	input := CreateInvoiceInput{
		VendorID:            req.VendorID,
		VendorInvoiceNumber: req.VendorInvoiceNumber,
		InvoiceDate:         invoiceDate,
		DueDate:             dueDate,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, InvoiceLineInput{
			OrderItemID: line.OrderItemID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	invoice, lines, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(invoice, lines))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	var vendorID int64
	if raw := r.URL.Query().Get("vendor_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid vendor_id")
			return
		}
		vendorID = parsed
	}
	status := InvoiceStatus(r.URL.Query().Get("status"))
	invoices, err := h.service.Invoices(r.Context(), vendorID, status)
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

func (h *Handler) handleUnbilled(w http.ResponseWriter, r *http.Request) {
	vendorID, err := strconv.ParseInt(chi.URLParam(r, "vendorID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid vendor id")
		return
	}
	receipts, err := h.service.UnbilledReceipts(r.Context(), vendorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if receipts == nil {
		receipts = []UnbilledReceipt{}
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	invoice, lines, err := h.service.Invoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice, lines))
}

func (h *Handler) handlePostInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	invoice, err := h.service.PostInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice, nil))
}
