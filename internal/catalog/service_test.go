package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

type memoryRepo struct {
	itemsBySKU map[string]Item
	itemsByID  map[int64]Item
	stock      map[int64]StockSummary
	lookups    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		itemsBySKU: make(map[string]Item),
		itemsByID:  make(map[int64]Item),
		stock:      make(map[int64]StockSummary),
	}
}

func (r *memoryRepo) add(item Item, stock StockSummary) {
	r.itemsBySKU[item.SKU] = item
	r.itemsByID[item.ID] = item
	r.stock[item.ID] = stock
}

func (r *memoryRepo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	r.lookups++
	item, ok := r.itemsBySKU[sku]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (r *memoryRepo) GetItemByID(ctx context.Context, id int64) (Item, error) {
	item, ok := r.itemsByID[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (r *memoryRepo) StockSummary(ctx context.Context, itemID int64) (StockSummary, error) {
	return r.stock[itemID], nil
}

func int64ptr(v int64) *int64 { return &v }

func TestCheckAvailabilityTerminalItem(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Item{ID: 1, SKU: "06A-145-710", Name: "Turbocharger", Brand: "VW"}, StockSummary{OnHand: 8, Reserved: 3})
	svc := NewService(repo, nil)

	avail, err := svc.CheckAvailability(context.Background(), "06A-145-710")
	require.NoError(t, err)
	require.Equal(t, "06A-145-710", avail.SKU)
	require.InDelta(t, 8.0, avail.OnHand, 1e-9)
	require.InDelta(t, 3.0, avail.Reserved, 1e-9)
	require.InDelta(t, 5.0, avail.Available, 1e-9)
	require.False(t, avail.IsSuperseded)
	require.Empty(t, avail.SuggestedSKU)
}

func TestCheckAvailabilityMissingStockDefaultsZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Item{ID: 1, SKU: "1J0-615-301", Name: "Brake Disc", Brand: "VW"}, StockSummary{})
	svc := NewService(repo, nil)

	avail, err := svc.CheckAvailability(context.Background(), "1J0-615-301")
	require.NoError(t, err)
	require.Zero(t, avail.OnHand)
	require.Zero(t, avail.Available)
}

func TestCheckAvailabilityFollowsSupersessionChain(t *testing.T) {
	repo := newMemoryRepo()
	// A superseded by B, B superseded by C.
	repo.add(Item{ID: 3, SKU: "C", Name: "Water Pump v3", Brand: "Audi"}, StockSummary{OnHand: 4})
	repo.add(Item{ID: 2, SKU: "B", Name: "Water Pump v2", Brand: "Audi", SupersededByID: int64ptr(3)}, StockSummary{OnHand: 1})
	repo.add(Item{ID: 1, SKU: "A", Name: "Water Pump", Brand: "Audi", SupersededByID: int64ptr(2)}, StockSummary{})
	svc := NewService(repo, nil)

	avail, err := svc.CheckAvailability(context.Background(), "A")
	require.NoError(t, err)
	// Quantities come from the terminal item, the suggestion is the immediate next link.
	require.Equal(t, "C", avail.SKU)
	require.InDelta(t, 4.0, avail.OnHand, 1e-9)
	require.True(t, avail.IsSuperseded)
	require.Equal(t, "A", avail.OriginalSKU)
	require.Equal(t, "B", avail.SuggestedSKU)
}

func TestCheckAvailabilityUnknownSKU(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.CheckAvailability(context.Background(), "NOPE")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckAvailabilityDetectsCycle(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Item{ID: 1, SKU: "A", SupersededByID: int64ptr(2)}, StockSummary{})
	repo.add(Item{ID: 2, SKU: "B", SupersededByID: int64ptr(1)}, StockSummary{})
	svc := NewService(repo, nil)

	_, err := svc.CheckAvailability(context.Background(), "A")
	require.ErrorIs(t, err, ErrSupersessionCycle)
}

func TestCheckAvailabilityUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := newMemoryRepo()
	repo.add(Item{ID: 1, SKU: "X", Name: "Oil Filter", Brand: "Mann"}, StockSummary{OnHand: 2})
	svc := NewService(repo, NewCache(client, time.Minute))
	ctx := context.Background()

	first, err := svc.CheckAvailability(ctx, "X")
	require.NoError(t, err)
	second, err := svc.CheckAvailability(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.lookups)

	// A version bump forces the next lookup back to the repository.
	require.NoError(t, NewCache(client, time.Minute).Bump(ctx))
	_, err = svc.CheckAvailability(ctx, "X")
	require.NoError(t, err)
	require.Equal(t, 2, repo.lookups)
}
