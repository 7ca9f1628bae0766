package finance

import (
	"fmt"
	"time"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// Settings is the singleton finance configuration row (id = 1).
type Settings struct {
	ID                   int64      `json:"id"`
	FiscalYearStartMonth int        `json:"fiscal_year_start_month"`
	LockDate             *time.Time `json:"lock_date"`
	NextInvoiceNumber    int64      `json:"next_invoice_number"`
	InvoicePrefix        string     `json:"invoice_prefix"`
}

// Defaults used when the singleton row is created lazily.
const (
	DefaultFiscalYearStartMonth = 1
	DefaultNextInvoiceNumber    = 1001
	DefaultInvoicePrefix        = "RE-"
)

// SettingsPatch describes a partial settings update. Nil fields are left
// unchanged; ClearLockDate removes the lock regardless of LockDate.
type SettingsPatch struct {
	FiscalYearStartMonth *int
	LockDate             *time.Time
	ClearLockDate        bool
	NextInvoiceNumber    *int64
	InvoicePrefix        *string
}

// RevenueGroup is a tax/accounting category snapshotted onto sales lines.
type RevenueGroup struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	TaxRate       float64 `json:"tax_rate"`
	AccountNumber string  `json:"account_number"`
	IsDefault     bool    `json:"is_default"`
}

// ErrPeriodLocked indicates the transaction date falls in a locked fiscal period.
var ErrPeriodLocked = fmt.Errorf("%w: fiscal period locked", shared.ErrForbidden)

// FormatInvoiceNumber composes a sequential invoice number such as RE-2026-0042.
func FormatInvoiceNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%d-%04d", prefix, year, seq)
}
