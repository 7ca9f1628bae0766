package purchasing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autohaus-erp/autohaus-erp/internal/catalog"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
)

const testWarehouseID = int64(1)

type stockKey struct {
	itemID     int64
	locationID int64
}

type memoryRepo struct {
	mu        sync.Mutex
	vendors   map[int64]Vendor
	orders    map[int64]Order
	items     map[int64]OrderItem
	invoices  map[int64]Invoice
	lines     map[int64]InvoiceLine
	ledgerTxs []ledger.Transaction
	stock     map[stockKey]float64
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		vendors:  make(map[int64]Vendor),
		orders:   make(map[int64]Order),
		items:    make(map[int64]OrderItem),
		invoices: make(map[int64]Invoice),
		lines:    make(map[int64]InvoiceLine),
		stock:    make(map[stockKey]float64),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

type snapshot struct {
	orders    map[int64]Order
	items     map[int64]OrderItem
	invoices  map[int64]Invoice
	lines     map[int64]InvoiceLine
	ledgerTxs []ledger.Transaction
	stock     map[stockKey]float64
	nextID    int64
}

func (r *memoryRepo) snapshot() snapshot {
	s := snapshot{
		orders:    make(map[int64]Order, len(r.orders)),
		items:     make(map[int64]OrderItem, len(r.items)),
		invoices:  make(map[int64]Invoice, len(r.invoices)),
		lines:     make(map[int64]InvoiceLine, len(r.lines)),
		ledgerTxs: append([]ledger.Transaction(nil), r.ledgerTxs...),
		stock:     make(map[stockKey]float64, len(r.stock)),
		nextID:    r.nextID,
	}
	for k, v := range r.orders {
		s.orders[k] = v
	}
	for k, v := range r.items {
		s.items[k] = v
	}
	for k, v := range r.invoices {
		s.invoices[k] = v
	}
	for k, v := range r.lines {
		s.lines[k] = v
	}
	for k, v := range r.stock {
		s.stock[k] = v
	}
	return s
}

func (r *memoryRepo) restore(s snapshot) {
	r.orders = s.orders
	r.items = s.items
	r.invoices = s.invoices
	r.lines = s.lines
	r.ledgerTxs = s.ledgerTxs
	r.stock = s.stock
	r.nextID = s.nextID
}

// WithTx mimics a SQL transaction: all changes made by fn are reverted when
// fn fails. The mutex serializes concurrent transactions like row locks do.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryRepo) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	v, ok := r.vendors[id]
	if !ok {
		return Vendor{}, fmt.Errorf("vendor %d: %w", id, shared.ErrNotFound)
	}
	return v, nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, []OrderItem, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, nil, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	return o, r.itemsFor(id), nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, onlyOpen bool) ([]Order, error) {
	var orders []Order
	for _, o := range r.orders {
		if onlyOpen && o.Status == OrderStatusCompleted {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (r *memoryRepo) GetOrderItem(ctx context.Context, id int64) (OrderItem, error) {
	item, ok := r.items[id]
	if !ok {
		return OrderItem{}, fmt.Errorf("purchase order item %d: %w", id, shared.ErrNotFound)
	}
	return item, nil
}

func (r *memoryRepo) ListUnbilledReceipts(ctx context.Context, vendorID int64) ([]UnbilledReceipt, error) {
	var receipts []UnbilledReceipt
	for _, item := range r.items {
		order := r.orders[item.OrderID]
		if order.VendorID != vendorID || item.QuantityReceived <= item.QuantityInvoiced {
			continue
		}
		receipts = append(receipts, UnbilledReceipt{
			OrderItemID:      item.ID,
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			ItemID:           item.ItemID,
			QuantityReceived: item.QuantityReceived,
			QuantityInvoiced: item.QuantityInvoiced,
			QuantityPending:  item.QuantityReceived - item.QuantityInvoiced,
			LastUnitCost:     item.UnitCost,
		})
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].OrderItemID < receipts[j].OrderItemID })
	return receipts, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, nil, fmt.Errorf("purchase invoice %d: %w", id, shared.ErrNotFound)
	}
	var lines []InvoiceLine
	for _, line := range r.lines {
		if line.InvoiceID == id {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return inv, lines, nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context, vendorID int64, status InvoiceStatus) ([]Invoice, error) {
	var invoices []Invoice
	for _, inv := range r.invoices {
		if vendorID != 0 && inv.VendorID != vendorID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		invoices = append(invoices, inv)
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].ID > invoices[j].ID })
	return invoices, nil
}

func (r *memoryRepo) itemsFor(orderID int64) []OrderItem {
	var items []OrderItem
	for _, item := range r.items {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) CreateOrder(ctx context.Context, o Order) (Order, error) {
	o.ID = t.repo.id()
	o.CreatedAt = time.Now().UTC()
	t.repo.orders[o.ID] = o
	return o, nil
}

func (t *memoryTx) InsertOrderItem(ctx context.Context, item OrderItem) (OrderItem, error) {
	item.ID = t.repo.id()
	t.repo.items[item.ID] = item
	return item, nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, []OrderItem, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return Order{}, nil, fmt.Errorf("purchase order %d: %w", id, shared.ErrNotFound)
	}
	return o, t.repo.itemsFor(id), nil
}

func (t *memoryTx) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return t.repo.itemsFor(orderID), nil
}

func (t *memoryTx) IncrementReceived(ctx context.Context, orderItemID int64, qty float64) error {
	item := t.repo.items[orderItemID]
	item.QuantityReceived += qty
	t.repo.items[orderItemID] = item
	return nil
}

func (t *memoryTx) IncrementInvoiced(ctx context.Context, orderItemID int64, qty float64) error {
	item := t.repo.items[orderItemID]
	item.QuantityInvoiced += qty
	t.repo.items[orderItemID] = item
	return nil
}

func (t *memoryTx) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	o := t.repo.orders[id]
	o.Status = status
	t.repo.orders[id] = o
	return nil
}

func (t *memoryTx) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	inv.ID = t.repo.id()
	inv.CreatedAt = time.Now().UTC()
	t.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (t *memoryTx) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error) {
	line.ID = t.repo.id()
	t.repo.lines[line.ID] = line
	return line, nil
}

func (t *memoryTx) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	inv := t.repo.invoices[id]
	inv.Status = status
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{repo: t.repo}
}

func (t *memoryTx) EnsureDefaultWarehouse(ctx context.Context) (int64, error) {
	return testWarehouseID, nil
}

type memoryLedgerTx struct {
	repo *memoryRepo
}

func (t *memoryLedgerTx) InsertTransaction(ctx context.Context, tx ledger.Transaction) (int64, error) {
	tx.ID = t.repo.id()
	t.repo.ledgerTxs = append(t.repo.ledgerTxs, tx)
	return tx.ID, nil
}

func (t *memoryLedgerTx) ApplyStockDelta(ctx context.Context, itemID, locationID int64, delta float64) (float64, error) {
	key := stockKey{itemID, locationID}
	t.repo.stock[key] += delta
	return t.repo.stock[key], nil
}

func (t *memoryLedgerTx) DecrementOnHand(ctx context.Context, itemID, locationID int64, qty float64) (bool, error) {
	key := stockKey{itemID, locationID}
	if t.repo.stock[key] < qty {
		return false, nil
	}
	t.repo.stock[key] -= qty
	return true, nil
}

func (t *memoryLedgerTx) GetStock(ctx context.Context, itemID, locationID int64) (ledger.Stock, error) {
	onHand, ok := t.repo.stock[stockKey{itemID, locationID}]
	if !ok {
		return ledger.Stock{}, ledger.ErrStockNotFound
	}
	return ledger.Stock{ItemID: itemID, LocationID: locationID, OnHand: onHand}, nil
}

func (t *memoryLedgerTx) FindStockForItem(ctx context.Context, itemID int64) (ledger.Stock, error) {
	for key, onHand := range t.repo.stock {
		if key.itemID == itemID {
			return ledger.Stock{ItemID: itemID, LocationID: key.locationID, OnHand: onHand}, nil
		}
	}
	return ledger.Stock{}, ledger.ErrStockNotFound
}

type fakeCatalog struct {
	items map[int64]catalog.Item
}

func (c *fakeCatalog) GetItemByID(ctx context.Context, id int64) (catalog.Item, error) {
	item, ok := c.items[id]
	if !ok {
		return catalog.Item{}, fmt.Errorf("catalog item #%d: %w", id, shared.ErrNotFound)
	}
	return item, nil
}

func newTestService(repo *memoryRepo, cat *fakeCatalog) *Service {
	return NewService(repo, cat, ledger.NewService(nil, nil, nil), nil, nil)
}

func seedVendorAndItem(repo *memoryRepo, cat *fakeCatalog) {
	repo.vendors[1] = Vendor{ID: 1, Name: "Autoteile Nord", SupportedBrands: []string{"BOSCH", "SACHS"}}
	cat.items[10] = catalog.Item{ID: 10, SKU: "0986452041", Name: "Oil Filter", Brand: "BOSCH"}
	cat.items[11] = catalog.Item{ID: 11, SKU: "ZKN-501", Name: "Clutch Kit", Brand: "LUK"}
}

func TestCreateOrderValidatesVendorBrands(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, _, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 11, Quantity: 2, UnitCost: 80}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "LUK")

	order, items, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 10, Quantity: 10, UnitCost: 4.5}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, order.Status)
	require.Regexp(t, `^PO-\d{4}-\d{4}$`, order.OrderNumber)
	require.Len(t, items, 1)
	require.Zero(t, items[0].QuantityReceived)
}

func TestCreateOrderUnknownItemIsValidationError(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 999, Quantity: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiveItemsPostsStockAndDerivesStatus(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 10, Quantity: 10, UnitCost: 4.5}},
	})
	require.NoError(t, err)

	order, items, err := svc.ReceiveItems(ctx, order.ID, []ReceiptInput{{ItemID: 10, Quantity: 4}})
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartial, order.Status)
	require.InDelta(t, 4.0, items[0].QuantityReceived, 1e-9)
	require.InDelta(t, 4.0, repo.stock[stockKey{10, testWarehouseID}], 1e-9)
	require.Len(t, repo.ledgerTxs, 1)
	require.Equal(t, ledger.TypePurchaseReceipt, repo.ledgerTxs[0].Type)
	require.Equal(t, order.OrderNumber, repo.ledgerTxs[0].ReferenceID)
	require.NotNil(t, repo.ledgerTxs[0].CostBasis)
	require.InDelta(t, 4.5, *repo.ledgerTxs[0].CostBasis, 1e-9)

	order, _, err = svc.ReceiveItems(ctx, order.ID, []ReceiptInput{{ItemID: 10, Quantity: 6}})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)
	require.InDelta(t, 10.0, repo.stock[stockKey{10, testWarehouseID}], 1e-9)
}

func TestReceiveItemsOverReceiptRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 10, Quantity: 5, UnitCost: 4.5}},
	})
	require.NoError(t, err)

	_, _, err = svc.ReceiveItems(ctx, order.ID, []ReceiptInput{{ItemID: 10, Quantity: 6}})
	require.ErrorIs(t, err, shared.ErrValidation)

	// The failed receipt must leave no trace.
	_, items, err := svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Zero(t, items[0].QuantityReceived)
	require.Empty(t, repo.ledgerTxs)
	require.Empty(t, repo.stock)
}

func TestReceiveItemsDuplicateLinesCountAgainstOrdered(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 10, Quantity: 10, UnitCost: 4.5}},
	})
	require.NoError(t, err)

	// Two lines for the same item in one call: 6+6 exceeds the ordered 10,
	// so the whole call fails and rolls back.
	_, _, err = svc.ReceiveItems(ctx, order.ID, []ReceiptInput{
		{ItemID: 10, Quantity: 6},
		{ItemID: 10, Quantity: 6},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, items, err := svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Zero(t, items[0].QuantityReceived)
	require.Empty(t, repo.ledgerTxs)
	require.Empty(t, repo.stock)

	// 6+4 fills the line exactly and completes the order.
	order, items, err = svc.ReceiveItems(ctx, order.ID, []ReceiptInput{
		{ItemID: 10, Quantity: 6},
		{ItemID: 10, Quantity: 4},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)
	require.InDelta(t, 10.0, items[0].QuantityReceived, 1e-9)
	require.InDelta(t, 10.0, repo.stock[stockKey{10, testWarehouseID}], 1e-9)
	require.Len(t, repo.ledgerTxs, 2)
}

func TestReceiveItemsRejectsForeignItem(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 10, Quantity: 5, UnitCost: 4.5}},
	})
	require.NoError(t, err)

	_, _, err = svc.ReceiveItems(ctx, order.ID, []ReceiptInput{{ItemID: 999, Quantity: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeriveOrderStatusNeverRegresses(t *testing.T) {
	items := []OrderItem{{Quantity: 10, QuantityReceived: 10}}
	require.Equal(t, OrderStatusCompleted, deriveOrderStatus(OrderStatusPartial, items))
	// A completed order stays completed even if lines change afterwards.
	require.Equal(t, OrderStatusCompleted, deriveOrderStatus(OrderStatusCompleted, []OrderItem{{Quantity: 10}}))
	// No receipts keeps the current state.
	require.Equal(t, OrderStatusSent, deriveOrderStatus(OrderStatusSent, []OrderItem{{Quantity: 10}}))
	require.Equal(t, OrderStatusPartial, deriveOrderStatus(OrderStatusDraft, []OrderItem{{Quantity: 10, QuantityReceived: 3}}))
}

func TestCreateInvoiceGuardsPendingQuantity(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	order, items, err := svc.CreateOrder(ctx, CreateOrderInput{
		VendorID: 1,
		Lines:    []OrderLineInput{{ItemID: 10, Quantity: 10, UnitCost: 4.5}},
	})
	require.NoError(t, err)
	_, _, err = svc.ReceiveItems(ctx, order.ID, []ReceiptInput{{ItemID: 10, Quantity: 4}})
	require.NoError(t, err)

	lineID := items[0].ID
	invoice, lines, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		VendorID:            1,
		VendorInvoiceNumber: "LS-2026-117",
		InvoiceDate:         time.Now(),
		DueDate:             time.Now().AddDate(0, 0, 30),
		Lines: []InvoiceLineInput{
			{OrderItemID: &lineID, Description: "Oil Filter", Quantity: 4, UnitPrice: 4.5},
			{Description: "Freight", Quantity: 1, UnitPrice: 12},
		},
	})
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, invoice.Status)
	require.InDelta(t, 30.0, invoice.TotalAmount, 1e-9)
	require.Len(t, lines, 2)

	item, err := repo.GetOrderItem(ctx, lineID)
	require.NoError(t, err)
	require.InDelta(t, 4.0, item.QuantityInvoiced, 1e-9)

	// Everything received is invoiced now, one more unit must fail.
	_, _, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		VendorID:            1,
		VendorInvoiceNumber: "LS-2026-118",
		InvoiceDate:         time.Now(),
		DueDate:             time.Now().AddDate(0, 0, 30),
		Lines:               []InvoiceLineInput{{OrderItemID: &lineID, Quantity: 1, UnitPrice: 4.5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	// And the unbilled view is empty for the vendor.
	receipts, err := svc.UnbilledReceipts(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, receipts)
}

func TestPostInvoiceTransitions(t *testing.T) {
	repo := newMemoryRepo()
	cat := &fakeCatalog{items: make(map[int64]catalog.Item)}
	seedVendorAndItem(repo, cat)
	svc := newTestService(repo, cat)
	ctx := context.Background()

	invoice, _, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		VendorID:            1,
		VendorInvoiceNumber: "LS-2026-120",
		InvoiceDate:         time.Now(),
		DueDate:             time.Now().AddDate(0, 0, 14),
		Lines:               []InvoiceLineInput{{Description: "Disposal fee", Quantity: 1, UnitPrice: 25}},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPosted, posted.Status)

	_, err = svc.PostInvoice(ctx, invoice.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostInvoice(ctx, 9999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostInvoiceRejectsEmptyDraft(t *testing.T) {
	repo := newMemoryRepo()
	repo.invoices[1] = Invoice{ID: 1, VendorID: 1, Status: InvoiceStatusDraft}
	svc := newTestService(repo, &fakeCatalog{items: make(map[int64]catalog.Item)})

	_, err := svc.PostInvoice(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}
