package catalog

import (
	"fmt"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// Item is a catalog entry identified by its manufacturer part number (SKU).
// A non-nil SupersededByID links to the part that replaces this one.
type Item struct {
	ID             int64
	SKU            string
	Name           string
	Brand          string
	CostPrice      float64
	RetailPrice    float64
	SupersededByID *int64
	RevenueGroupID *int64
}

// Location is a storage location, typically a warehouse.
type Location struct {
	ID   int64
	Name string
	Type string
}

// StockSummary aggregates cached stock for an item across locations.
type StockSummary struct {
	OnHand   float64
	Reserved float64
}

// Availability is the sellable-quantity answer for a SKU. When the item is
// superseded the quantities describe the terminal item of the chain, while
// OriginalSKU names the requested part and SuggestedSKU the immediate next
// link.
type Availability struct {
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	OnHand       float64 `json:"quantity_on_hand"`
	Reserved     float64 `json:"quantity_reserved"`
	Available    float64 `json:"quantity_available"`
	IsSuperseded bool    `json:"is_superseded"`
	OriginalSKU  string  `json:"original_sku,omitempty"`
	SuggestedSKU string  `json:"suggested_sku,omitempty"`
}

// ErrSupersessionCycle indicates the supersededBy chain loops back on itself.
var ErrSupersessionCycle = fmt.Errorf("%w: supersession chain contains a cycle", shared.ErrValidation)
