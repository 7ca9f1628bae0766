package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// Repository persists finance data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSettings returns the singleton settings row, creating it with defaults
// on first access.
func (r *Repository) GetSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `
		INSERT INTO finance_settings (id, fiscal_year_start_month, lock_date, next_invoice_number, invoice_prefix)
		VALUES (1, $1, NULL, $2, $3)
		ON CONFLICT (id) DO UPDATE SET id = finance_settings.id
		RETURNING id, fiscal_year_start_month, lock_date, next_invoice_number, invoice_prefix`,
		DefaultFiscalYearStartMonth, DefaultNextInvoiceNumber, DefaultInvoicePrefix).
		Scan(&s.ID, &s.FiscalYearStartMonth, &s.LockDate, &s.NextInvoiceNumber, &s.InvoicePrefix)
	return s, err
}

// UpdateSettings patches the singleton row in one statement. Unset patch
// fields keep their stored value, so concurrent partial updates compose
// instead of overwriting each other.
func (r *Repository) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `
		UPDATE finance_settings
		SET fiscal_year_start_month = COALESCE($1, fiscal_year_start_month),
		    lock_date = CASE WHEN $2 THEN NULL ELSE COALESCE($3, lock_date) END,
		    next_invoice_number = COALESCE($4, next_invoice_number),
		    invoice_prefix = COALESCE($5, invoice_prefix)
		WHERE id = 1
		RETURNING id, fiscal_year_start_month, lock_date, next_invoice_number, invoice_prefix`,
		patch.FiscalYearStartMonth, patch.ClearLockDate, patch.LockDate, patch.NextInvoiceNumber, patch.InvoicePrefix).
		Scan(&s.ID, &s.FiscalYearStartMonth, &s.LockDate, &s.NextInvoiceNumber, &s.InvoicePrefix)
	return s, err
}

// ListRevenueGroups returns all revenue groups ordered by id.
func (r *Repository) ListRevenueGroups(ctx context.Context) ([]RevenueGroup, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, tax_rate, account_number, is_default FROM revenue_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []RevenueGroup
	for rows.Next() {
		var g RevenueGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.TaxRate, &g.AccountNumber, &g.IsDefault); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateRevenueGroup inserts a revenue group.
func (r *Repository) CreateRevenueGroup(ctx context.Context, g RevenueGroup) (RevenueGroup, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO revenue_groups (name, tax_rate, account_number, is_default)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		g.Name, g.TaxRate, g.AccountNumber, g.IsDefault).Scan(&g.ID)
	return g, err
}

// GetRevenueGroup loads one revenue group.
func (r *Repository) GetRevenueGroup(ctx context.Context, id int64) (RevenueGroup, error) {
	var g RevenueGroup
	err := r.pool.QueryRow(ctx, `SELECT id, name, tax_rate, account_number, is_default FROM revenue_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.TaxRate, &g.AccountNumber, &g.IsDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RevenueGroup{}, fmt.Errorf("revenue group %d: %w", id, shared.ErrNotFound)
		}
		return RevenueGroup{}, err
	}
	return g, nil
}

// TxQueries exposes finance operations that run on a caller's open transaction.
type TxQueries struct {
	tx pgx.Tx
}

// NewTxQueries wraps an open pgx transaction.
func NewTxQueries(tx pgx.Tx) *TxQueries {
	return &TxQueries{tx: tx}
}

// NextInvoiceSequence atomically increments (or creates) the per-year counter
// and returns the new value. Running inside the caller's transaction means an
// aborted finalize also reverts the sequence, so failures burn no numbers.
func (q *TxQueries) NextInvoiceSequence(ctx context.Context, year int) (int64, error) {
	var seq int64
	err := q.tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&seq)
	return seq, err
}
