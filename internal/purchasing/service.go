package purchasing

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/autohaus-erp/autohaus-erp/internal/catalog"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	GetOrder(ctx context.Context, id int64) (Order, []OrderItem, error)
	ListOrders(ctx context.Context, onlyOpen bool) ([]Order, error)
	GetOrderItem(ctx context.Context, id int64) (OrderItem, error)
	ListUnbilledReceipts(ctx context.Context, vendorID int64) ([]UnbilledReceipt, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error)
	ListInvoices(ctx context.Context, vendorID int64, status InvoiceStatus) ([]Invoice, error)
}

// CatalogPort resolves catalog items for brand validation.
type CatalogPort interface {
	GetItemByID(ctx context.Context, id int64) (catalog.Item, error)
}

// LedgerPort posts stock movements on a caller's transaction handle.
type LedgerPort interface {
	RecordIn(ctx context.Context, tx ledger.TxRepository, input ledger.RecordInput) (ledger.Transaction, error)
}

// CachePort invalidates the availability cache after stock changes.
type CachePort interface {
	Bump(ctx context.Context) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the purchasing workflow: orders, receiving and vendor bills.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	ledger  LedgerPort
	cache   CachePort
	audit   AuditPort
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cat CatalogPort, led LedgerPort, cache CachePort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: cat, ledger: led, cache: cache, audit: audit}
}

// OrderLineInput is one requested order line.
type OrderLineInput struct {
	ItemID   int64
	Quantity float64
	UnitCost float64
}

// CreateOrderInput is the payload for CreateOrder.
type CreateOrderInput struct {
	VendorID int64
	Lines    []OrderLineInput
}

// CreateOrder validates vendor brand compatibility for every line and creates
// the order in DRAFT with a generated order number.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, []OrderItem, error) {
	if len(input.Lines) == 0 {
		return Order{}, nil, fmt.Errorf("%w: at least one order line required", shared.ErrValidation)
	}
	vendor, err := s.repo.GetVendor(ctx, input.VendorID)
	if err != nil {
		return Order{}, nil, err
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return Order{}, nil, fmt.Errorf("%w: quantity must be positive for item %d", shared.ErrValidation, line.ItemID)
		}
		if line.UnitCost < 0 {
			return Order{}, nil, fmt.Errorf("%w: unit cost must not be negative for item %d", shared.ErrValidation, line.ItemID)
		}
		item, err := s.catalog.GetItemByID(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// An unknown item on an order payload is a caller mistake,
				// not a missing resource.
				return Order{}, nil, fmt.Errorf("%w: catalog item %d not found", shared.ErrValidation, line.ItemID)
			}
			return Order{}, nil, err
		}
		if item.Brand != "" && !vendor.SupportsBrand(item.Brand) {
			return Order{}, nil, fmt.Errorf("%w: vendor %s does not supply brand %s (supported: %s)",
				shared.ErrValidation, vendor.Name, item.Brand, strings.Join(vendor.SupportedBrands, ", "))
		}
	}

	var (
		order Order
		items []OrderItem
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.CreateOrder(ctx, Order{
			VendorID:    vendor.ID,
			OrderNumber: generateOrderNumber(time.Now().UTC()),
			Status:      OrderStatusDraft,
		})
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			item, err := tx.InsertOrderItem(ctx, OrderItem{
				OrderID:  order.ID,
				ItemID:   line.ItemID,
				Quantity: line.Quantity,
				UnitCost: line.UnitCost,
			})
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return Order{}, nil, err
	}
	s.recordAudit(ctx, "purchasing:order_created", "purchase_order", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"vendor_id":    order.VendorID,
		"lines":        len(items),
	})
	return order, items, nil
}

// ReceiptInput is one received quantity against an order line's item.
type ReceiptInput struct {
	ItemID   int64
	Quantity float64
}

// ReceiveItems books received quantities against the order in one atomic unit:
// line counters, stock movements at the default warehouse and the derived
// order status all commit or roll back together.
func (s *Service) ReceiveItems(ctx context.Context, orderID int64, receipts []ReceiptInput) (Order, []OrderItem, error) {
	if len(receipts) == 0 {
		return Order{}, nil, fmt.Errorf("%w: at least one receipt line required", shared.ErrValidation)
	}
	var (
		order Order
		items []OrderItem
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		var lines []OrderItem
		order, lines, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		byItem := make(map[int64]OrderItem, len(lines))
		for _, line := range lines {
			byItem[line.ItemID] = line
		}
		locationID, err := tx.EnsureDefaultWarehouse(ctx)
		if err != nil {
			return err
		}
		for _, receipt := range receipts {
			if receipt.Quantity <= 0 {
				return fmt.Errorf("%w: receipt quantity must be positive for item %d", shared.ErrValidation, receipt.ItemID)
			}
			line, ok := byItem[receipt.ItemID]
			if !ok {
				return fmt.Errorf("%w: item %d is not on order %s", shared.ErrValidation, receipt.ItemID, order.OrderNumber)
			}
			if line.QuantityReceived+receipt.Quantity > line.Quantity {
				return fmt.Errorf("%w: receiving %.2f of item %d exceeds ordered %.2f (already received %.2f)",
					shared.ErrValidation, receipt.Quantity, receipt.ItemID, line.Quantity, line.QuantityReceived)
			}
			if err := tx.IncrementReceived(ctx, line.ID, receipt.Quantity); err != nil {
				return err
			}
			// Keep the snapshot current so duplicate receipt lines for the
			// same item are checked against the already-booked quantity.
			line.QuantityReceived += receipt.Quantity
			byItem[receipt.ItemID] = line
			cost := line.UnitCost
			if _, err := s.ledger.RecordIn(ctx, tx.Ledger(), ledger.RecordInput{
				ItemID:      receipt.ItemID,
				LocationID:  locationID,
				Quantity:    receipt.Quantity,
				Type:        ledger.TypePurchaseReceipt,
				ReferenceID: order.OrderNumber,
				CostBasis:   &cost,
			}); err != nil {
				return err
			}
		}
		items, err = tx.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if next := deriveOrderStatus(order.Status, items); next != order.Status {
			if err := tx.UpdateOrderStatus(ctx, orderID, next); err != nil {
				return err
			}
			order.Status = next
		}
		return nil
	})
	if err != nil {
		return Order{}, nil, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	s.recordAudit(ctx, "purchasing:items_received", "purchase_order", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"receipts":     len(receipts),
	})
	return order, items, nil
}

// Orders lists purchase orders. With onlyOpen set, completed orders are
// filtered out.
func (s *Service) Orders(ctx context.Context, onlyOpen bool) ([]Order, error) {
	return s.repo.ListOrders(ctx, onlyOpen)
}

// Order loads one purchase order with its lines.
func (s *Service) Order(ctx context.Context, id int64) (Order, []OrderItem, error) {
	return s.repo.GetOrder(ctx, id)
}

// UnbilledReceipts lists the vendor's received-but-not-invoiced order lines,
// the working set for building a vendor bill.
func (s *Service) UnbilledReceipts(ctx context.Context, vendorID int64) ([]UnbilledReceipt, error) {
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	return s.repo.ListUnbilledReceipts(ctx, vendorID)
}

// InvoiceLineInput is one requested vendor bill line. OrderItemID links it to
// a received order line; free lines (freight, fees) leave it nil.
type InvoiceLineInput struct {
	OrderItemID *int64
	Description string
	Quantity    float64
	UnitPrice   float64
}

// CreateInvoiceInput is the payload for CreateInvoice.
type CreateInvoiceInput struct {
	VendorID            int64
	VendorInvoiceNumber string
	InvoiceDate         time.Time
	DueDate             time.Time
	Lines               []InvoiceLineInput
}

// CreateInvoice records a vendor bill in DRAFT. Lines linked to an order line
// must not bill more than the received-minus-invoiced remainder; accepted
// quantities advance the line's invoiced counter.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, []InvoiceLine, error) {
	if len(input.Lines) == 0 {
		return Invoice{}, nil, fmt.Errorf("%w: at least one invoice line required", shared.ErrValidation)
	}
	if input.VendorInvoiceNumber == "" {
		return Invoice{}, nil, fmt.Errorf("%w: vendor invoice number required", shared.ErrValidation)
	}
	vendor, err := s.repo.GetVendor(ctx, input.VendorID)
	if err != nil {
		return Invoice{}, nil, err
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return Invoice{}, nil, fmt.Errorf("%w: invoice line quantity must be positive", shared.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return Invoice{}, nil, fmt.Errorf("%w: invoice line price must not be negative", shared.ErrValidation)
		}
		if line.OrderItemID == nil {
			continue
		}
		poItem, err := s.repo.GetOrderItem(ctx, *line.OrderItemID)
		if err != nil {
			return Invoice{}, nil, err
		}
		pending := poItem.QuantityReceived - poItem.QuantityInvoiced
		if line.Quantity > pending {
			return Invoice{}, nil, fmt.Errorf("%w: invoicing %.2f against order item %d exceeds pending %.2f",
				shared.ErrValidation, line.Quantity, poItem.ID, pending)
		}
	}

	var (
		invoice Invoice
		lines   []InvoiceLine
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total := 0.0
		for _, line := range input.Lines {
			total += line.Quantity * line.UnitPrice
		}
		var err error
		invoice, err = tx.CreateInvoice(ctx, Invoice{
			VendorID:            vendor.ID,
			VendorInvoiceNumber: input.VendorInvoiceNumber,
			InvoiceDate:         input.InvoiceDate,
			DueDate:             input.DueDate,
			Status:              InvoiceStatusDraft,
			TotalAmount:         total,
		})
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			created, err := tx.InsertInvoiceLine(ctx, InvoiceLine{
				InvoiceID:   invoice.ID,
				OrderItemID: line.OrderItemID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				LineTotal:   line.Quantity * line.UnitPrice,
			})
			if err != nil {
				return err
			}
			if line.OrderItemID != nil {
				if err := tx.IncrementInvoiced(ctx, *line.OrderItemID, line.Quantity); err != nil {
					return err
				}
			}
			lines = append(lines, created)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	s.recordAudit(ctx, "purchasing:invoice_created", "purchase_invoice", invoice.ID, map[string]any{
		"vendor_id":             invoice.VendorID,
		"vendor_invoice_number": invoice.VendorInvoiceNumber,
		"total_amount":          invoice.TotalAmount,
	})
	return invoice, lines, nil
}

// PostInvoice moves a DRAFT vendor bill to POSTED. Only drafts with at least
// one line can post.
func (s *Service) PostInvoice(ctx context.Context, id int64) (Invoice, error) {
	invoice, lines, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if invoice.Status != InvoiceStatusDraft {
		return Invoice{}, fmt.Errorf("%w: invoice %d is %s, only drafts can post", shared.ErrValidation, id, invoice.Status)
	}
	if len(lines) == 0 {
		return Invoice{}, fmt.Errorf("%w: invoice %d has no lines", shared.ErrValidation, id)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// GL entry generation hooks in here once the accounting module lands;
		// posting currently only advances the status.
		return tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusPosted)
	})
	if err != nil {
		return Invoice{}, err
	}
	invoice.Status = InvoiceStatusPosted
	s.recordAudit(ctx, "purchasing:invoice_posted", "purchase_invoice", invoice.ID, map[string]any{
		"vendor_invoice_number": invoice.VendorInvoiceNumber,
	})
	return invoice, nil
}

// Invoices lists vendor bills, optionally filtered by vendor and status.
func (s *Service) Invoices(ctx context.Context, vendorID int64, status InvoiceStatus) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, vendorID, status)
}

// Invoice loads one vendor bill with its lines.
func (s *Service) Invoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error) {
	return s.repo.GetInvoice(ctx, id)
}

// generateOrderNumber builds PO-<year>-<rand4>. Collisions bounce off the
// unique index on order_number.
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("PO-%d-%04d", now.Year(), rand.IntN(10000))
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
