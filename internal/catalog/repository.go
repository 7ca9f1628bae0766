package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// Repository reads catalog data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, sku, name, COALESCE(brand, ''), cost_price, retail_price, superseded_by_id, revenue_group_id`

// GetItemBySKU loads one catalog item by its part number.
func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE sku = $1`, sku), sku)
}

// GetItemByID loads one catalog item by id.
func (r *Repository) GetItemByID(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id), fmt.Sprintf("#%d", id))
}

// StockSummary sums cached stock for the item across all locations.
func (r *Repository) StockSummary(ctx context.Context, itemID int64) (StockSummary, error) {
	var sum StockSummary
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_on_hand), 0), COALESCE(SUM(quantity_reserved), 0) FROM inventory_stock WHERE item_id = $1`, itemID).Scan(&sum.OnHand, &sum.Reserved)
	return sum, err
}

func scanItem(row pgx.Row, ref string) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.SKU, &item.Name, &item.Brand, &item.CostPrice, &item.RetailPrice, &item.SupersededByID, &item.RevenueGroupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("catalog item %s: %w", ref, shared.ErrNotFound)
		}
		return Item{}, err
	}
	return item, nil
}

// TxQueries exposes catalog operations that run on a caller's open transaction.
type TxQueries struct {
	tx pgx.Tx
}

// NewTxQueries wraps an open pgx transaction.
func NewTxQueries(tx pgx.Tx) *TxQueries {
	return &TxQueries{tx: tx}
}

// EnsureDefaultWarehouse resolves the first warehouse location, creating a
// default one when none exists yet.
func (q *TxQueries) EnsureDefaultWarehouse(ctx context.Context) (int64, error) {
	var id int64
	err := q.tx.QueryRow(ctx, `SELECT id FROM storage_locations WHERE type = 'warehouse' ORDER BY id LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	err = q.tx.QueryRow(ctx, `INSERT INTO storage_locations (name, type) VALUES ('Default Warehouse', 'warehouse') RETURNING id`).Scan(&id)
	return id, err
}
