package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autohaus-erp/autohaus-erp/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of the ledger. It is the
// unit-of-work handle callers pass back into the service so that ledger writes
// participate in their enclosing transaction.
type TxRepository interface {
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	ApplyStockDelta(ctx context.Context, itemID, locationID int64, delta float64) (float64, error)
	DecrementOnHand(ctx context.Context, itemID, locationID int64, qty float64) (bool, error)
	GetStock(ctx context.Context, itemID, locationID int64) (Stock, error)
	FindStockForItem(ctx context.Context, itemID int64) (Stock, error)
}

// ErrStockNotFound indicates no cached stock row exists for the pair.
var ErrStockNotFound = errors.New("ledger: stock not found")

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction so other modules can compose
// ledger writes into their own atomic unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// History lists transactions for an item, newest first, joined with display
// names. A zero locationID returns movements across all locations.
func (r *Repository) History(ctx context.Context, itemID, locationID int64) ([]HistoryEntry, error) {
	const q = `
		SELECT t.id, t.item_id, t.location_id, t.quantity, t.tx_type, COALESCE(t.reference_id, ''), t.cost_basis, t.created_at,
		       i.sku, i.name, l.name
		FROM inventory_transactions t
		JOIN catalog_items i ON i.id = t.item_id
		JOIN storage_locations l ON l.id = t.location_id
		WHERE t.item_id = $1 AND ($2 = 0 OR t.location_id = $2)
		ORDER BY t.created_at DESC, t.id DESC`
	rows, err := r.pool.Query(ctx, q, itemID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.LocationID, &e.Quantity, &e.Type, &e.ReferenceID, &e.CostBasis, &e.CreatedAt, &e.ItemSKU, &e.ItemName, &e.LocationName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumQuantities totals all movement quantities for the pair.
func (r *Repository) SumQuantities(ctx context.Context, itemID, locationID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory_transactions WHERE item_id = $1 AND location_id = $2`, itemID, locationID).Scan(&sum)
	return sum, err
}

// GetStock returns the cached stock row for the pair.
func (r *Repository) GetStock(ctx context.Context, itemID, locationID int64) (Stock, error) {
	return scanStock(r.pool.QueryRow(ctx, `SELECT item_id, location_id, quantity_on_hand, quantity_reserved, updated_at FROM inventory_stock WHERE item_id = $1 AND location_id = $2`, itemID, locationID))
}

// ListStockRefs returns every (item, location) pair with a cached stock row.
func (r *Repository) ListStockRefs(ctx context.Context) ([]StockRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, location_id FROM inventory_stock ORDER BY item_id, location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []StockRef
	for rows.Next() {
		var ref StockRef
		if err := rows.Scan(&ref.ItemID, &ref.LocationID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO inventory_transactions (item_id, location_id, quantity, tx_type, reference_id, cost_basis, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id`,
		tx.ItemID, tx.LocationID, tx.Quantity, string(tx.Type), tx.ReferenceID, tx.CostBasis, tx.CreatedAt).Scan(&id)
	return id, err
}

// ApplyStockDelta upserts the stock row and returns the resulting on-hand
// quantity. Creation and increment happen in one statement so concurrent
// movements against the same pair serialize on the row.
func (r *txRepository) ApplyStockDelta(ctx context.Context, itemID, locationID int64, delta float64) (float64, error) {
	var onHand float64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO inventory_stock (item_id, location_id, quantity_on_hand, quantity_reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (item_id, location_id)
		DO UPDATE SET quantity_on_hand = inventory_stock.quantity_on_hand + EXCLUDED.quantity_on_hand, updated_at = NOW()
		RETURNING quantity_on_hand`,
		itemID, locationID, delta).Scan(&onHand)
	return onHand, err
}

// DecrementOnHand conditionally subtracts qty from on-hand stock. Zero rows
// affected means the guard failed and stock is insufficient.
func (r *txRepository) DecrementOnHand(ctx context.Context, itemID, locationID int64, qty float64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE inventory_stock
		SET quantity_on_hand = quantity_on_hand - $3, updated_at = NOW()
		WHERE item_id = $1 AND location_id = $2 AND quantity_on_hand >= $3`,
		itemID, locationID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) GetStock(ctx context.Context, itemID, locationID int64) (Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT item_id, location_id, quantity_on_hand, quantity_reserved, updated_at FROM inventory_stock WHERE item_id = $1 AND location_id = $2`, itemID, locationID))
}

func (r *txRepository) FindStockForItem(ctx context.Context, itemID int64) (Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT item_id, location_id, quantity_on_hand, quantity_reserved, updated_at FROM inventory_stock WHERE item_id = $1 ORDER BY location_id LIMIT 1`, itemID))
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ItemID, &s.LocationID, &s.OnHand, &s.Reserved, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return s, nil
}
