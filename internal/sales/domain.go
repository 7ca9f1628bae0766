package sales

import (
	"time"
)

// InvoiceStatus enumerates customer invoice states. PAID and CANCELLED are
// set by downstream payment handling; this module only moves DRAFT to
// FINALIZED.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is a customer bill. InvoiceNumber stays nil until finalize
// allocates one from the per-year sequence.
type Invoice struct {
	ID            int64
	CustomerID    int64
	VehicleID     *int64
	InvoiceNumber *string
	Status        InvoiceStatus
	Date          time.Time
	DueDate       time.Time
	TotalNet      float64
	TotalTax      float64
	TotalGross    float64
	Notes         string
	InternalNotes string
	CreatedAt     time.Time
}

// InvoiceItem is one invoice line. Description, price, tax rate and revenue
// group name are snapshots taken at draft creation; later catalog or revenue
// group changes never touch existing lines.
type InvoiceItem struct {
	ID               int64
	InvoiceID        int64
	CatalogItemID    *int64
	Description      string
	Quantity         float64
	UnitPrice        float64
	TaxRate          float64
	RevenueGroupName string
}
