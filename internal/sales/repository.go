package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autohaus-erp/autohaus-erp/internal/finance"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/platform/db"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// Repository persists sales data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the unit-of-work handle for sales writes. NextInvoiceSequence
// and Ledger bridge into the finance and inventory packages so number
// allocation, stock deduction and the status flip commit or roll back as one.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertInvoiceItem(ctx context.Context, item InvoiceItem) (InvoiceItem, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, []InvoiceItem, error)
	MarkFinalized(ctx context.Context, id int64, number string) error
	NextInvoiceSequence(ctx context.Context, year int) (int64, error)
	Ledger() ledger.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `id, customer_id, vehicle_id, invoice_number, status, invoice_date, due_date,
	total_net, total_tax, total_gross, COALESCE(notes, ''), COALESCE(internal_notes, ''), created_at`

// GetInvoice loads one invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceItem, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE id = $1`, id), id)
	if err != nil {
		return Invoice{}, nil, err
	}
	items, err := listInvoiceItems(ctx, r.pool, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, items, nil
}

// ListInvoices returns invoices newest first, optionally filtered by status.
func (r *Repository) ListInvoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM sales_invoices
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoiceRow(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listInvoiceItems(ctx context.Context, q queryer, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, catalog_item_id, description, quantity, unit_price, tax_rate, COALESCE(revenue_group_name, '')
		FROM sales_invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.CatalogItemID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.TaxRate, &item.RevenueGroupName); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanInvoice(row pgx.Row, id int64) (Invoice, error) {
	inv, err := scanInvoiceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("sales invoice %d: %w", id, shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func scanInvoiceRow(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.VehicleID, &inv.InvoiceNumber, &inv.Status,
		&inv.Date, &inv.DueDate, &inv.TotalNet, &inv.TotalTax, &inv.TotalGross,
		&inv.Notes, &inv.InternalNotes, &inv.CreatedAt)
	return inv, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sales_invoices (customer_id, vehicle_id, invoice_number, status, invoice_date, due_date,
			total_net, total_tax, total_gross, notes, internal_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''))
		RETURNING id, created_at`,
		inv.CustomerID, inv.VehicleID, inv.InvoiceNumber, string(inv.Status), inv.Date, inv.DueDate,
		inv.TotalNet, inv.TotalTax, inv.TotalGross, inv.Notes, inv.InternalNotes).Scan(&inv.ID, &inv.CreatedAt)
	return inv, err
}

func (r *txRepository) InsertInvoiceItem(ctx context.Context, item InvoiceItem) (InvoiceItem, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sales_invoice_items (invoice_id, catalog_item_id, description, quantity, unit_price, tax_rate, revenue_group_name)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id`,
		item.InvoiceID, item.CatalogItemID, item.Description, item.Quantity, item.UnitPrice, item.TaxRate, item.RevenueGroupName).Scan(&item.ID)
	return item, err
}

// GetInvoiceForUpdate locks the invoice row so concurrent finalize calls on
// the same invoice serialize.
func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, []InvoiceItem, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE id = $1 FOR UPDATE`, id), id)
	if err != nil {
		return Invoice{}, nil, err
	}
	items, err := listInvoiceItems(ctx, r.tx, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, items, nil
}

func (r *txRepository) MarkFinalized(ctx context.Context, id int64, number string) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET status = $2, invoice_number = $3 WHERE id = $1`,
		id, string(InvoiceStatusFinalized), number)
	return err
}

func (r *txRepository) NextInvoiceSequence(ctx context.Context, year int) (int64, error) {
	return finance.NewTxQueries(r.tx).NextInvoiceSequence(ctx, year)
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}
