package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autohaus-erp/autohaus-erp/internal/catalog"
	"github.com/autohaus-erp/autohaus-erp/internal/finance"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// dueDays is the default payment term applied to new drafts.
const dueDays = 14

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceItem, error)
	ListInvoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error)
}

// CatalogPort resolves catalog items for line snapshotting.
type CatalogPort interface {
	GetItemByID(ctx context.Context, id int64) (catalog.Item, error)
}

// FinancePort supplies settings, the fiscal lock check and revenue groups.
type FinancePort interface {
	Settings(ctx context.Context) (finance.Settings, error)
	ValidateTransactionDate(ctx context.Context, date time.Time) error
	RevenueGroup(ctx context.Context, id int64) (finance.RevenueGroup, error)
}

// LedgerPort issues outbound stock movements on a caller's transaction handle.
type LedgerPort interface {
	IssueIn(ctx context.Context, tx ledger.TxRepository, itemID, locationID int64, qty float64, referenceID string) (ledger.Transaction, error)
}

// CachePort invalidates the availability cache after stock changes.
type CachePort interface {
	Bump(ctx context.Context) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the customer invoice lifecycle: drafts and the finalize
// transaction that deducts stock and allocates the gap-free invoice number.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	finance FinancePort
	ledger  LedgerPort
	cache   CachePort
	audit   AuditPort
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cat CatalogPort, fin FinancePort, led LedgerPort, cache CachePort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: cat, finance: fin, ledger: led, cache: cache, audit: audit}
}

// DraftLineInput is one requested invoice line. Lines referencing a catalog
// item get the item's revenue group tax terms regardless of the submitted
// TaxRate.
type DraftLineInput struct {
	CatalogItemID *int64
	Description   string
	Quantity      float64
	UnitPrice     float64
	TaxRate       float64
}

// CreateDraftInput is the payload for CreateDraft.
type CreateDraftInput struct {
	CustomerID    int64
	VehicleID     *int64
	Notes         string
	InternalNotes string
	Lines         []DraftLineInput
}

// CreateDraft persists a DRAFT invoice. Revenue group name and tax rate are
// snapshotted onto each line now and never re-read, so later catalog changes
// leave issued drafts untouched.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (Invoice, []InvoiceItem, error) {
	if input.CustomerID == 0 {
		return Invoice{}, nil, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Invoice{}, nil, fmt.Errorf("%w: at least one invoice line required", shared.ErrValidation)
	}

	lines := make([]InvoiceItem, 0, len(input.Lines))
	totalNet, totalTax := 0.0, 0.0
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return Invoice{}, nil, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return Invoice{}, nil, fmt.Errorf("%w: line price must not be negative", shared.ErrValidation)
		}
		if line.TaxRate < 0 || line.TaxRate > 100 {
			return Invoice{}, nil, fmt.Errorf("%w: tax rate %.2f out of range", shared.ErrValidation, line.TaxRate)
		}
		item := InvoiceItem{
			CatalogItemID: line.CatalogItemID,
			Description:   line.Description,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			TaxRate:       line.TaxRate,
		}
		if line.CatalogItemID != nil {
			catItem, err := s.catalog.GetItemByID(ctx, *line.CatalogItemID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return Invoice{}, nil, fmt.Errorf("%w: catalog item %d not found", shared.ErrValidation, *line.CatalogItemID)
				}
				return Invoice{}, nil, err
			}
			if item.Description == "" {
				item.Description = catItem.Name
			}
			if catItem.RevenueGroupID != nil {
				group, err := s.finance.RevenueGroup(ctx, *catItem.RevenueGroupID)
				if err != nil {
					return Invoice{}, nil, err
				}
				item.TaxRate = group.TaxRate
				item.RevenueGroupName = group.Name
			}
		}
		if item.Description == "" {
			return Invoice{}, nil, fmt.Errorf("%w: line description required", shared.ErrValidation)
		}
		net := item.Quantity * item.UnitPrice
		totalNet += net
		totalTax += net * item.TaxRate / 100
		lines = append(lines, item)
	}

	now := time.Now().UTC()
	var (
		invoice Invoice
		items   []InvoiceItem
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		invoice, err = tx.InsertInvoice(ctx, Invoice{
			CustomerID:    input.CustomerID,
			VehicleID:     input.VehicleID,
			Status:        InvoiceStatusDraft,
			Date:          now,
			DueDate:       now.AddDate(0, 0, dueDays),
			TotalNet:      totalNet,
			TotalTax:      totalTax,
			TotalGross:    totalNet + totalTax,
			Notes:         input.Notes,
			InternalNotes: input.InternalNotes,
		})
		if err != nil {
			return err
		}
		for _, line := range lines {
			line.InvoiceID = invoice.ID
			created, err := tx.InsertInvoiceItem(ctx, line)
			if err != nil {
				return err
			}
			items = append(items, created)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	s.recordAudit(ctx, "sales:draft_created", invoice.ID, map[string]any{
		"customer_id": invoice.CustomerID,
		"total_gross": invoice.TotalGross,
		"lines":       len(items),
	})
	return invoice, items, nil
}

// Finalize moves a DRAFT invoice to FINALIZED in one atomic unit: the fiscal
// lock check, number allocation, per-line stock deduction and the status flip
// commit or roll back together. A failed finalize burns no invoice number
// because the sequence increment rolls back with everything else.
func (s *Service) Finalize(ctx context.Context, id int64) (Invoice, []InvoiceItem, error) {
	var (
		invoice Invoice
		items   []InvoiceItem
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		invoice, items, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusDraft {
			return fmt.Errorf("%w: invoice %d is %s, only drafts can be finalized", shared.ErrValidation, id, invoice.Status)
		}
		if err := s.finance.ValidateTransactionDate(ctx, invoice.Date); err != nil {
			return err
		}
		settings, err := s.finance.Settings(ctx)
		if err != nil {
			return err
		}
		year := time.Now().UTC().Year()
		seq, err := tx.NextInvoiceSequence(ctx, year)
		if err != nil {
			return err
		}
		number := finance.FormatInvoiceNumber(settings.InvoicePrefix, year, seq)

		ltx := tx.Ledger()
		for _, item := range items {
			if item.CatalogItemID == nil {
				continue
			}
			stock, err := ltx.FindStockForItem(ctx, *item.CatalogItemID)
			if err != nil {
				if errors.Is(err, ledger.ErrStockNotFound) {
					return fmt.Errorf("%w: no stock for %s", shared.ErrValidation, item.Description)
				}
				return err
			}
			if _, err := s.ledger.IssueIn(ctx, ltx, *item.CatalogItemID, stock.LocationID, item.Quantity, number); err != nil {
				return err
			}
		}
		if err := tx.MarkFinalized(ctx, id, number); err != nil {
			return err
		}
		invoice.Status = InvoiceStatusFinalized
		invoice.InvoiceNumber = &number
		return nil
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	s.recordAudit(ctx, "sales:finalized", invoice.ID, map[string]any{
		"invoice_number": *invoice.InvoiceNumber,
		"total_gross":    invoice.TotalGross,
	})
	return invoice, items, nil
}

// Invoices lists invoices, optionally filtered by status.
func (s *Service) Invoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, status)
}

// Invoice loads one invoice with its lines.
func (s *Service) Invoice(ctx context.Context, id int64) (Invoice, []InvoiceItem, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "sales_invoice",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
