package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error)
	ListRevenueGroups(ctx context.Context) ([]RevenueGroup, error)
	CreateRevenueGroup(ctx context.Context, g RevenueGroup) (RevenueGroup, error)
	GetRevenueGroup(ctx context.Context, id int64) (RevenueGroup, error)
}

// Service owns finance settings, revenue groups and the fiscal lock check.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Settings returns the singleton settings, creating defaults on first call.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings applies a partial update to the singleton row. The patch is
// written in one statement so concurrent patches to different fields cannot
// clobber each other.
func (s *Service) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	if patch.FiscalYearStartMonth != nil {
		if month := *patch.FiscalYearStartMonth; month < 1 || month > 12 {
			return Settings{}, fmt.Errorf("%w: fiscal year start month %d out of range", shared.ErrValidation, month)
		}
	}
	if patch.NextInvoiceNumber != nil && *patch.NextInvoiceNumber < 1 {
		return Settings{}, fmt.Errorf("%w: next invoice number must be positive", shared.ErrValidation)
	}
	// Make sure the singleton exists before patching it.
	if _, err := s.repo.GetSettings(ctx); err != nil {
		return Settings{}, err
	}
	return s.repo.UpdateSettings(ctx, patch)
}

// ValidateTransactionDate rejects dates on or before the fiscal lock date.
func (s *Service) ValidateTransactionDate(ctx context.Context, date time.Time) error {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.LockDate != nil && !date.After(*settings.LockDate) {
		return fmt.Errorf("%w: transaction date %s is on or before lock date %s",
			ErrPeriodLocked, date.Format("2006-01-02"), settings.LockDate.Format("2006-01-02"))
	}
	return nil
}

// RevenueGroups lists all revenue groups.
func (s *Service) RevenueGroups(ctx context.Context) ([]RevenueGroup, error) {
	return s.repo.ListRevenueGroups(ctx)
}

// CreateRevenueGroup validates and persists a revenue group.
func (s *Service) CreateRevenueGroup(ctx context.Context, g RevenueGroup) (RevenueGroup, error) {
	if g.Name == "" {
		return RevenueGroup{}, fmt.Errorf("%w: revenue group name required", shared.ErrValidation)
	}
	if g.TaxRate < 0 || g.TaxRate > 100 {
		return RevenueGroup{}, fmt.Errorf("%w: tax rate %.2f out of range", shared.ErrValidation, g.TaxRate)
	}
	return s.repo.CreateRevenueGroup(ctx, g)
}

// RevenueGroup loads one revenue group by id.
func (s *Service) RevenueGroup(ctx context.Context, id int64) (RevenueGroup, error) {
	return s.repo.GetRevenueGroup(ctx, id)
}
