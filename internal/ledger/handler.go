package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autohaus-erp/autohaus-erp/internal/platform/httpx"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// ScanEnqueuer queues background integrity scans.
type ScanEnqueuer interface {
	EnqueueStockIntegrityScan(ctx context.Context) error
}

// Handler exposes ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    *shared.IdempotencyStore
	scans   ScanEnqueuer
}

// NewHandler constructs the ledger handler. idem may be nil, disabling
// duplicate detection on manual adjustments; scans may be nil, disabling
// on-demand integrity scans.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, scans ScanEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, scans: scans}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory/transactions", h.handleAdjust)
	r.Get("/inventory/items/{itemID}/history", h.handleHistory)
	r.Get("/inventory/integrity", h.handleIntegrity)
	r.Post("/inventory/integrity-scan", h.handleScanEnqueue)
}

type adjustRequest struct {
	ItemID      int64    `json:"catalog_item_id"`
	LocationID  int64    `json:"location_id"`
	Quantity    float64  `json:"quantity"`
	Type        string   `json:"type"`
	ReferenceID string   `json:"reference_id"`
	CostBasis   *float64 `json:"cost_basis"`
}

// manual movement types; receipts and issues belong to their workflows.
var adjustableTypes = map[TransactionType]bool{
	TypeAdjustment:     true,
	TypeInitialBalance: true,
	TypeTransferIn:     true,
	TypeTransferOut:    true,
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	txType := TransactionType(req.Type)
	if !adjustableTypes[txType] {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "type must be a manual movement type")
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = uuid.NewString()
	}
	if h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, "ledger"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this adjustment was already processed")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}
	created, err := h.service.Record(r.Context(), RecordInput{
		ItemID:      req.ItemID,
		LocationID:  req.LocationID,
		Quantity:    req.Quantity,
		Type:        txType,
		ReferenceID: req.ReferenceID,
		CostBasis:   req.CostBasis,
	})
	if err != nil {
		if h.idem != nil {
			_ = h.idem.Delete(r.Context(), key)
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":          created.ID,
		"quantity":    created.Quantity,
		"type":        string(created.Type),
		"created_at":  created.CreatedAt.Format(time.RFC3339),
		"item_id":     created.ItemID,
		"location_id": created.LocationID,
	})
}

type historyEntryResponse struct {
	ID           int64    `json:"id"`
	Quantity     float64  `json:"quantity"`
	Type         string   `json:"type"`
	ReferenceID  string   `json:"reference_id,omitempty"`
	CostBasis    *float64 `json:"cost_basis,omitempty"`
	CreatedAt    string   `json:"created_at"`
	ItemSKU      string   `json:"item_sku"`
	ItemName     string   `json:"item_name"`
	LocationName string   `json:"location_name"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var locationID int64
	if raw := r.URL.Query().Get("location_id"); raw != "" {
		locationID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
			return
		}
	}
	entries, err := h.service.History(r.Context(), itemID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			ID:           e.ID,
			Quantity:     e.Quantity,
			Type:         string(e.Type),
			ReferenceID:  e.ReferenceID,
			CostBasis:    e.CostBasis,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
			ItemSKU:      e.ItemSKU,
			ItemName:     e.ItemName,
			LocationName: e.LocationName,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	itemID, err1 := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	locationID, err2 := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if err1 != nil || err2 != nil || itemID <= 0 || locationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id and location_id required")
		return
	}
	ok, err := h.service.VerifyIntegrity(r.Context(), itemID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": itemID, "location_id": locationID, "consistent": ok})
}

// handleScanEnqueue queues a full integrity scan on the worker instead of
// running it inline; a big stock table would hold the request open too long.
func (h *Handler) handleScanEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Not Available", "background scans are not configured")
		return
	}
	if err := h.scans.EnqueueStockIntegrityScan(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("stock integrity scan enqueued")
	httpx.JSON(w, http.StatusAccepted, map[string]any{"enqueued": true})
}
