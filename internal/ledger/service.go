package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// epsilon absorbs float drift when comparing quantities.
const epsilon = 1e-6

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	History(ctx context.Context, itemID, locationID int64) ([]HistoryEntry, error)
	SumQuantities(ctx context.Context, itemID, locationID int64) (float64, error)
	GetStock(ctx context.Context, itemID, locationID int64) (Stock, error)
	ListStockRefs(ctx context.Context) ([]StockRef, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates the availability cache after stock mutations.
type CachePort interface {
	Bump(ctx context.Context) error
}

// Service is the ledger engine: the only writer of inventory_transactions and
// inventory_stock.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CachePort
}

// NewService builds Service. audit and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// Record posts a movement in its own atomic unit of work. Callers composing
// RecordIn into their own transaction handle cache invalidation themselves.
func (s *Service) Record(ctx context.Context, input RecordInput) (Transaction, error) {
	var created Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.RecordIn(ctx, tx, input)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	s.recordAudit(ctx, created)
	return created, nil
}

// RecordIn posts a movement inside the caller's open transaction. The
// transaction row and the stock cache update commit or roll back together
// with everything else the caller does on the same handle.
func (s *Service) RecordIn(ctx context.Context, tx TxRepository, input RecordInput) (Transaction, error) {
	if input.ItemID == 0 || input.LocationID == 0 {
		return Transaction{}, fmt.Errorf("%w: item and location required", shared.ErrValidation)
	}
	if input.Quantity == 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	if !input.Type.Valid() {
		return Transaction{}, ErrInvalidType
	}

	row := Transaction{
		ItemID:      input.ItemID,
		LocationID:  input.LocationID,
		Quantity:    input.Quantity,
		Type:        input.Type,
		ReferenceID: input.ReferenceID,
		CostBasis:   input.CostBasis,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := tx.InsertTransaction(ctx, row)
	if err != nil {
		return Transaction{}, err
	}
	onHand, err := tx.ApplyStockDelta(ctx, input.ItemID, input.LocationID, input.Quantity)
	if err != nil {
		return Transaction{}, err
	}
	if onHand < -epsilon {
		return Transaction{}, &InsufficientStockError{
			ItemID:     input.ItemID,
			LocationID: input.LocationID,
			Requested:  -input.Quantity,
			Resulting:  onHand,
		}
	}
	row.ID = id
	return row, nil
}

// IssueIn books an outbound SALE_ISSUE movement inside the caller's open
// transaction. The stock decrement is guarded: when the pre-decrement quantity
// is below qty no row is touched and InsufficientStockError is returned, so
// concurrent issues against the same pair cannot both drain the stock.
func (s *Service) IssueIn(ctx context.Context, tx TxRepository, itemID, locationID int64, qty float64, referenceID string) (Transaction, error) {
	if qty <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	ok, err := tx.DecrementOnHand(ctx, itemID, locationID, qty)
	if err != nil {
		return Transaction{}, err
	}
	if !ok {
		onHand := 0.0
		if stock, err := tx.GetStock(ctx, itemID, locationID); err == nil {
			onHand = stock.OnHand
		}
		return Transaction{}, &InsufficientStockError{
			ItemID:     itemID,
			LocationID: locationID,
			Requested:  qty,
			Resulting:  onHand - qty,
		}
	}
	row := Transaction{
		ItemID:      itemID,
		LocationID:  locationID,
		Quantity:    -qty,
		Type:        TypeSaleIssue,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := tx.InsertTransaction(ctx, row)
	if err != nil {
		return Transaction{}, err
	}
	row.ID = id
	return row, nil
}

// History returns movements for an item, newest first. A zero locationID
// spans all locations.
func (s *Service) History(ctx context.Context, itemID, locationID int64) ([]HistoryEntry, error) {
	if itemID == 0 {
		return nil, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	return s.repo.History(ctx, itemID, locationID)
}

// VerifyIntegrity compares the transaction sum against the cached on-hand
// quantity for the pair. A missing stock row counts as zero.
func (s *Service) VerifyIntegrity(ctx context.Context, itemID, locationID int64) (bool, error) {
	sum, err := s.repo.SumQuantities(ctx, itemID, locationID)
	if err != nil {
		return false, err
	}
	onHand := 0.0
	stock, err := s.repo.GetStock(ctx, itemID, locationID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return false, err
	}
	if err == nil {
		onHand = stock.OnHand
	}
	return math.Abs(sum-onHand) < epsilon, nil
}

// ListStockRefs exposes all cached pairs, used by the integrity scan job.
func (s *Service) ListStockRefs(ctx context.Context) ([]StockRef, error) {
	return s.repo.ListStockRefs(ctx)
}

func (s *Service) recordAudit(ctx context.Context, tx Transaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   fmt.Sprintf("ledger:%s", tx.Type),
		Entity:   "inventory_tx",
		EntityID: fmt.Sprintf("%d", tx.ID),
		Meta: map[string]any{
			"item_id":     tx.ItemID,
			"location_id": tx.LocationID,
			"quantity":    tx.Quantity,
			"reference":   tx.ReferenceID,
		},
	})
}
