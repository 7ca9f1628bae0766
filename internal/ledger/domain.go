package ledger

import (
	"fmt"
	"time"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// TransactionType enumerates supported inventory movements.
type TransactionType string

const (
	// TypePurchaseReceipt records goods received against a purchase order.
	TypePurchaseReceipt TransactionType = "PURCHASE_RECEIPT"
	// TypeSaleIssue records stock issued on a finalized sales invoice.
	TypeSaleIssue TransactionType = "SALE_ISSUE"
	// TypeAdjustment records a manual correction.
	TypeAdjustment TransactionType = "ADJUSTMENT"
	// TypeTransferIn records stock arriving from another location.
	TypeTransferIn TransactionType = "TRANSFER_IN"
	// TypeTransferOut records stock leaving for another location.
	TypeTransferOut TransactionType = "TRANSFER_OUT"
	// TypeInitialBalance seeds the opening quantity for an item.
	TypeInitialBalance TransactionType = "INITIAL_BALANCE"
)

// Valid reports whether t is a known movement type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchaseReceipt, TypeSaleIssue, TypeAdjustment, TypeTransferIn, TypeTransferOut, TypeInitialBalance:
		return true
	}
	return false
}

// Transaction is one immutable row of the movement log. Positive quantity
// increases stock, negative decreases it. Rows are never updated or deleted.
type Transaction struct {
	ID          int64
	ItemID      int64
	LocationID  int64
	Quantity    float64
	Type        TransactionType
	ReferenceID string
	CostBasis   *float64
	CreatedAt   time.Time
}

// Stock is the cached on-hand/reserved summary per (item, location).
// It is derived from the transaction log and owned exclusively by this package.
type Stock struct {
	ItemID     int64
	LocationID int64
	OnHand     float64
	Reserved   float64
	UpdatedAt  time.Time
}

// StockRef identifies a stock row without its quantities.
type StockRef struct {
	ItemID     int64
	LocationID int64
}

// HistoryEntry is a transaction joined with display names for audit views.
type HistoryEntry struct {
	Transaction
	ItemSKU      string
	ItemName     string
	LocationName string
}

// RecordInput describes a movement to post.
type RecordInput struct {
	ItemID      int64
	LocationID  int64
	Quantity    float64
	Type        TransactionType
	ReferenceID string
	CostBasis   *float64
}

// InsufficientStockError is returned when a movement would leave the cached
// on-hand quantity negative. The enclosing transaction is rolled back.
type InsufficientStockError struct {
	ItemID     int64
	LocationID int64
	Requested  float64
	Resulting  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d at location %d: requested %.2f would leave %.2f on hand", e.ItemID, e.LocationID, e.Requested, e.Resulting)
}

// Unwrap classifies the error as a caller-input violation.
func (e *InsufficientStockError) Unwrap() error { return shared.ErrValidation }

// ErrInvalidQuantity indicates a zero movement quantity.
var ErrInvalidQuantity = fmt.Errorf("%w: quantity must be non zero", shared.ErrValidation)

// ErrInvalidType indicates an unknown movement type.
var ErrInvalidType = fmt.Errorf("%w: unknown transaction type", shared.ErrValidation)
