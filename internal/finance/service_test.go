package finance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

type memoryRepo struct {
	settings  *Settings
	groups    []RevenueGroup
	lastPatch *SettingsPatch
}

func (r *memoryRepo) GetSettings(ctx context.Context) (Settings, error) {
	if r.settings == nil {
		r.settings = &Settings{
			ID:                   1,
			FiscalYearStartMonth: DefaultFiscalYearStartMonth,
			NextInvoiceNumber:    DefaultNextInvoiceNumber,
			InvoicePrefix:        DefaultInvoicePrefix,
		}
	}
	return *r.settings, nil
}

func (r *memoryRepo) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	r.lastPatch = &patch
	s := *r.settings
	if patch.FiscalYearStartMonth != nil {
		s.FiscalYearStartMonth = *patch.FiscalYearStartMonth
	}
	if patch.ClearLockDate {
		s.LockDate = nil
	} else if patch.LockDate != nil {
		s.LockDate = patch.LockDate
	}
	if patch.NextInvoiceNumber != nil {
		s.NextInvoiceNumber = *patch.NextInvoiceNumber
	}
	if patch.InvoicePrefix != nil {
		s.InvoicePrefix = *patch.InvoicePrefix
	}
	r.settings = &s
	return s, nil
}

func (r *memoryRepo) ListRevenueGroups(ctx context.Context) ([]RevenueGroup, error) {
	return r.groups, nil
}

func (r *memoryRepo) CreateRevenueGroup(ctx context.Context, g RevenueGroup) (RevenueGroup, error) {
	g.ID = int64(len(r.groups) + 1)
	r.groups = append(r.groups, g)
	return g, nil
}

func (r *memoryRepo) GetRevenueGroup(ctx context.Context, id int64) (RevenueGroup, error) {
	for _, g := range r.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return RevenueGroup{}, shared.ErrNotFound
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestSettingsDefaults(t *testing.T) {
	svc := NewService(&memoryRepo{})
	settings, err := svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), settings.ID)
	require.Equal(t, 1, settings.FiscalYearStartMonth)
	require.Nil(t, settings.LockDate)
	require.Equal(t, int64(1001), settings.NextInvoiceNumber)
	require.Equal(t, "RE-", settings.InvoicePrefix)
}

func TestUpdateSettingsPatchSemantics(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	lock := date(2025, 12, 31)
	updated, err := svc.UpdateSettings(ctx, SettingsPatch{LockDate: &lock})
	require.NoError(t, err)
	require.NotNil(t, updated.LockDate)
	require.Equal(t, "RE-", updated.InvoicePrefix)

	prefix := "INV-"
	updated, err = svc.UpdateSettings(ctx, SettingsPatch{InvoicePrefix: &prefix})
	require.NoError(t, err)
	require.Equal(t, "INV-", updated.InvoicePrefix)
	// Untouched fields survive partial updates.
	require.NotNil(t, updated.LockDate)

	updated, err = svc.UpdateSettings(ctx, SettingsPatch{ClearLockDate: true})
	require.NoError(t, err)
	require.Nil(t, updated.LockDate)

	month := 13
	_, err = svc.UpdateSettings(ctx, SettingsPatch{FiscalYearStartMonth: &month})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateSettingsWritesOnlyPatchedFields(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	prefix := "INV-"
	_, err := svc.UpdateSettings(ctx, SettingsPatch{InvoicePrefix: &prefix})
	require.NoError(t, err)

	// The patch reaches the repository as-is: unset fields stay unset, so a
	// concurrent patch to a different field cannot be overwritten.
	require.NotNil(t, repo.lastPatch)
	require.NotNil(t, repo.lastPatch.InvoicePrefix)
	require.Nil(t, repo.lastPatch.FiscalYearStartMonth)
	require.Nil(t, repo.lastPatch.LockDate)
	require.Nil(t, repo.lastPatch.NextInvoiceNumber)
	require.False(t, repo.lastPatch.ClearLockDate)
}

func TestValidateTransactionDate(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	// No lock date set: everything passes.
	require.NoError(t, svc.ValidateTransactionDate(ctx, date(2025, 6, 1)))

	lock := date(2025, 12, 31)
	_, err := svc.UpdateSettings(ctx, SettingsPatch{LockDate: &lock})
	require.NoError(t, err)

	err = svc.ValidateTransactionDate(ctx, date(2025, 6, 1))
	require.ErrorIs(t, err, ErrPeriodLocked)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// The lock is inclusive: the lock date itself is rejected.
	err = svc.ValidateTransactionDate(ctx, lock)
	require.ErrorIs(t, err, ErrPeriodLocked)

	require.NoError(t, svc.ValidateTransactionDate(ctx, date(2026, 1, 1)))
}

func TestCreateRevenueGroupValidation(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	_, err := svc.CreateRevenueGroup(ctx, RevenueGroup{TaxRate: 19})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRevenueGroup(ctx, RevenueGroup{Name: "Parts", TaxRate: 120})
	require.ErrorIs(t, err, shared.ErrValidation)

	group, err := svc.CreateRevenueGroup(ctx, RevenueGroup{Name: "Parts", TaxRate: 19, AccountNumber: "8400"})
	require.NoError(t, err)
	require.Equal(t, int64(1), group.ID)
}

func TestFormatInvoiceNumber(t *testing.T) {
	require.Equal(t, "RE-2026-0042", FormatInvoiceNumber("RE-", 2026, 42))
	require.Equal(t, "RE-2026-1001", FormatInvoiceNumber("RE-", 2026, 1001))
}
