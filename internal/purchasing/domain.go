package purchasing

import (
	"time"
)

// OrderStatus enumerates purchase order states. Transitions are derived from
// aggregate received quantities and never regress.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// InvoiceStatus enumerates purchase invoice states.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusPosted InvoiceStatus = "POSTED"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

// Vendor is a supplier with the set of brands it is allowed to deliver.
type Vendor struct {
	ID              int64
	Name            string
	SupportedBrands []string
}

// SupportsBrand reports whether the vendor may supply the given brand.
func (v Vendor) SupportsBrand(brand string) bool {
	for _, b := range v.SupportedBrands {
		if b == brand {
			return true
		}
	}
	return false
}

// Order is a purchase order header.
type Order struct {
	ID          int64
	VendorID    int64
	OrderNumber string
	Status      OrderStatus
	CreatedAt   time.Time
}

// OrderItem is one purchase order line. QuantityReceived and QuantityInvoiced
// accumulate as goods arrive and vendor bills are recorded.
type OrderItem struct {
	ID               int64
	OrderID          int64
	ItemID           int64
	Quantity         float64
	UnitCost         float64
	QuantityReceived float64
	QuantityInvoiced float64
}

// Invoice is a vendor bill header.
type Invoice struct {
	ID                  int64
	VendorID            int64
	VendorInvoiceNumber string
	InvoiceDate         time.Time
	DueDate             time.Time
	Status              InvoiceStatus
	TotalAmount         float64
	CreatedAt           time.Time
}

// InvoiceLine is one vendor bill line, optionally billed against an order line.
type InvoiceLine struct {
	ID          int64
	InvoiceID   int64
	OrderItemID *int64
	Description string
	Quantity    float64
	UnitPrice   float64
	LineTotal   float64
}

// UnbilledReceipt is an order line quantity received but not yet invoiced.
type UnbilledReceipt struct {
	OrderItemID      int64   `json:"purchase_order_item_id"`
	OrderID          int64   `json:"purchase_order_id"`
	OrderNumber      string  `json:"purchase_order_number"`
	ItemID           int64   `json:"catalog_item_id"`
	ItemName         string  `json:"catalog_item_name"`
	QuantityReceived float64 `json:"quantity_received"`
	QuantityInvoiced float64 `json:"quantity_invoiced"`
	QuantityPending  float64 `json:"quantity_pending"`
	LastUnitCost     float64 `json:"last_unit_cost"`
}

// deriveOrderStatus computes the order status from its lines. The result
// never regresses: a fully received order stays COMPLETED and an order with
// no receipts keeps its current state.
func deriveOrderStatus(current OrderStatus, items []OrderItem) OrderStatus {
	if current == OrderStatusCompleted {
		return OrderStatusCompleted
	}
	allReceived := len(items) > 0
	anyReceived := false
	for _, item := range items {
		if item.QuantityReceived < item.Quantity {
			allReceived = false
		}
		if item.QuantityReceived > 0 {
			anyReceived = true
		}
	}
	switch {
	case allReceived:
		return OrderStatusCompleted
	case anyReceived:
		return OrderStatusPartial
	default:
		return current
	}
}
