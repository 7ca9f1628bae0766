package purchasing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autohaus-erp/autohaus-erp/internal/catalog"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/platform/db"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// Repository persists purchasing data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the unit-of-work handle for purchasing writes. Ledger and
// EnsureDefaultWarehouse bridge into the inventory and catalog packages so
// receiving posts stock movements in the same transaction as the order update.
type TxRepository interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	InsertOrderItem(ctx context.Context, item OrderItem) (OrderItem, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, []OrderItem, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	IncrementReceived(ctx context.Context, orderItemID int64, qty float64) error
	IncrementInvoiced(ctx context.Context, orderItemID int64, qty float64) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	Ledger() ledger.TxRepository
	EnsureDefaultWarehouse(ctx context.Context) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetVendor loads one vendor with its supported brand list.
func (r *Repository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(supported_brands, '{}') FROM vendors WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.SupportedBrands)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, fmt.Errorf("vendor %d: %w", id, shared.ErrNotFound)
		}
		return Vendor{}, err
	}
	return v, nil
}

const orderColumns = `id, vendor_id, order_number, status, created_at`

// GetOrder loads one order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, []OrderItem, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id), id)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := listOrderItems(ctx, r.pool, id)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

// ListOrders returns orders newest first. With onlyOpen set, COMPLETED
// orders are excluded.
func (r *Repository) ListOrders(ctx context.Context, onlyOpen bool) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM purchase_orders
		WHERE ($1 = FALSE OR status <> 'COMPLETED')
		ORDER BY created_at DESC, id DESC`, onlyOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.VendorID, &o.OrderNumber, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetOrderItem loads one order line.
func (r *Repository) GetOrderItem(ctx context.Context, id int64) (OrderItem, error) {
	item, err := scanOrderItem(r.pool.QueryRow(ctx, `SELECT `+orderItemColumns+` FROM purchase_order_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderItem{}, fmt.Errorf("purchase order item %d: %w", id, shared.ErrNotFound)
		}
		return OrderItem{}, err
	}
	return item, nil
}

// ListUnbilledReceipts returns, per order line of the vendor, quantities
// received but not yet invoiced.
func (r *Repository) ListUnbilledReceipts(ctx context.Context, vendorID int64) ([]UnbilledReceipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT poi.id, po.id, po.order_number, poi.item_id, ci.name,
		       poi.quantity_received, poi.quantity_invoiced, poi.unit_cost
		FROM purchase_order_items poi
		JOIN purchase_orders po ON po.id = poi.order_id
		JOIN catalog_items ci ON ci.id = poi.item_id
		WHERE po.vendor_id = $1 AND poi.quantity_received > poi.quantity_invoiced
		ORDER BY po.created_at, poi.id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []UnbilledReceipt
	for rows.Next() {
		var rec UnbilledReceipt
		if err := rows.Scan(&rec.OrderItemID, &rec.OrderID, &rec.OrderNumber, &rec.ItemID, &rec.ItemName,
			&rec.QuantityReceived, &rec.QuantityInvoiced, &rec.LastUnitCost); err != nil {
			return nil, err
		}
		rec.QuantityPending = rec.QuantityReceived - rec.QuantityInvoiced
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

const invoiceColumns = `id, vendor_id, vendor_invoice_number, invoice_date, due_date, status, total_amount, created_at`

// GetInvoice loads one vendor bill with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id = $1`, id).
		Scan(&inv.ID, &inv.VendorID, &inv.VendorInvoiceNumber, &inv.InvoiceDate, &inv.DueDate, &inv.Status, &inv.TotalAmount, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, nil, fmt.Errorf("purchase invoice %d: %w", id, shared.ErrNotFound)
		}
		return Invoice{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, order_item_id, description, quantity, unit_price, line_total
		FROM purchase_invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.OrderItemID, &line.Description, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return Invoice{}, nil, err
		}
		lines = append(lines, line)
	}
	return inv, lines, rows.Err()
}

// ListInvoices returns vendor bills newest first. Zero vendorID and empty
// status disable the respective filter.
func (r *Repository) ListInvoices(ctx context.Context, vendorID int64, status InvoiceStatus) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM purchase_invoices
		WHERE ($1 = 0 OR vendor_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC`, vendorID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.VendorID, &inv.VendorInvoiceNumber, &inv.InvoiceDate, &inv.DueDate, &inv.Status, &inv.TotalAmount, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const orderItemColumns = `id, order_id, item_id, quantity, unit_cost, quantity_received, quantity_invoiced`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listOrderItems(ctx context.Context, q queryer, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT `+orderItemColumns+` FROM purchase_order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row, id int64) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.VendorID, &o.OrderNumber, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
		}
		return Order{}, err
	}
	return o, nil
}

func scanOrderItem(row pgx.Row) (OrderItem, error) {
	var item OrderItem
	err := row.Scan(&item.ID, &item.OrderID, &item.ItemID, &item.Quantity, &item.UnitCost, &item.QuantityReceived, &item.QuantityInvoiced)
	return item, err
}

func (r *txRepository) CreateOrder(ctx context.Context, o Order) (Order, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (vendor_id, order_number, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		o.VendorID, o.OrderNumber, string(o.Status)).Scan(&o.ID, &o.CreatedAt)
	return o, err
}

func (r *txRepository) InsertOrderItem(ctx context.Context, item OrderItem) (OrderItem, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_order_items (order_id, item_id, quantity, unit_cost, quantity_received, quantity_invoiced)
		VALUES ($1, $2, $3, $4, 0, 0)
		RETURNING id`,
		item.OrderID, item.ItemID, item.Quantity, item.UnitCost).Scan(&item.ID)
	return item, err
}

// GetOrderForUpdate locks the order row for the rest of the transaction so
// concurrent receipts against the same order serialize.
func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, []OrderItem, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id), id)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := listOrderItems(ctx, r.tx, id)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

func (r *txRepository) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return listOrderItems(ctx, r.tx, orderID)
}

func (r *txRepository) IncrementReceived(ctx context.Context, orderItemID int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET quantity_received = quantity_received + $2 WHERE id = $1`, orderItemID, qty)
	return err
}

func (r *txRepository) IncrementInvoiced(ctx context.Context, orderItemID int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET quantity_invoiced = quantity_invoiced + $2 WHERE id = $1`, orderItemID, qty)
	return err
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2 WHERE id = $1`, id, string(status))
	return err
}

func (r *txRepository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_invoices (vendor_id, vendor_invoice_number, invoice_date, due_date, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		inv.VendorID, inv.VendorInvoiceNumber, inv.InvoiceDate, inv.DueDate, string(inv.Status), inv.TotalAmount).Scan(&inv.ID, &inv.CreatedAt)
	return inv, err
}

func (r *txRepository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_invoice_lines (invoice_id, order_item_id, description, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		line.InvoiceID, line.OrderItemID, line.Description, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&line.ID)
	return line, err
}

func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET status = $2 WHERE id = $1`, id, string(status))
	return err
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func (r *txRepository) EnsureDefaultWarehouse(ctx context.Context) (int64, error) {
	return catalog.NewTxQueries(r.tx).EnsureDefaultWarehouse(ctx)
}
