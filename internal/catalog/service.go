package catalog

import (
	"context"
	"fmt"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	GetItemByID(ctx context.Context, id int64) (Item, error)
	StockSummary(ctx context.Context, itemID int64) (StockSummary, error)
}

// Service resolves sellable quantities, following supersession chains.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// CheckAvailability reports the sellable quantity for a SKU. When the item is
// superseded the answer describes the terminal part of the chain, annotated
// with the requested SKU and the immediate replacement.
func (s *Service) CheckAvailability(ctx context.Context, sku string) (Availability, error) {
	if s.cache == nil {
		return s.resolve(ctx, sku, map[string]struct{}{})
	}
	key, err := s.cache.BuildKey(ctx, "catalog", "availability", sku)
	if err != nil {
		return Availability{}, err
	}
	var avail Availability
	err = s.cache.FetchJSON(ctx, key, &avail, func(ctx context.Context) (interface{}, error) {
		return s.resolve(ctx, sku, map[string]struct{}{})
	})
	return avail, err
}

func (s *Service) resolve(ctx context.Context, sku string, visited map[string]struct{}) (Availability, error) {
	if _, seen := visited[sku]; seen {
		return Availability{}, fmt.Errorf("%w: revisited %s", ErrSupersessionCycle, sku)
	}
	visited[sku] = struct{}{}

	item, err := s.repo.GetItemBySKU(ctx, sku)
	if err != nil {
		return Availability{}, err
	}

	if item.SupersededByID != nil {
		next, err := s.repo.GetItemByID(ctx, *item.SupersededByID)
		if err != nil {
			return Availability{}, err
		}
		avail, err := s.resolve(ctx, next.SKU, visited)
		if err != nil {
			return Availability{}, err
		}
		avail.OriginalSKU = sku
		avail.SuggestedSKU = next.SKU
		avail.IsSuperseded = true
		return avail, nil
	}

	sum, err := s.repo.StockSummary(ctx, item.ID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		SKU:       item.SKU,
		Name:      item.Name,
		Brand:     item.Brand,
		OnHand:    sum.OnHand,
		Reserved:  sum.Reserved,
		Available: sum.OnHand - sum.Reserved,
	}, nil
}
