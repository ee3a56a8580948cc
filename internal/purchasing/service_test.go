package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/shared"
	_ "github.com/stockforge/stockforge/internal/testing/guard"
)

type memoryPurchaseRepo struct {
	products   map[int64]catalog.Product
	purchases  map[int64]Purchase
	nextID     int64
	failCredit error
}

type memoryPurchaseTx struct {
	repo *memoryPurchaseRepo
}

func newMemoryPurchaseRepo() *memoryPurchaseRepo {
	return &memoryPurchaseRepo{
		products:  make(map[int64]catalog.Product),
		purchases: make(map[int64]Purchase),
	}
}

func (r *memoryPurchaseRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := make(map[int64]catalog.Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	purchases := make(map[int64]Purchase, len(r.purchases))
	for k, v := range r.purchases {
		purchases[k] = v
	}
	nextID := r.nextID

	if err := fn(ctx, &memoryPurchaseTx{repo: r}); err != nil {
		r.products = products
		r.purchases = purchases
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryPurchaseRepo) Get(ctx context.Context, id int64) (Purchase, error) {
	p, ok := r.purchases[id]
	if !ok {
		return Purchase{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryPurchaseRepo) List(ctx context.Context, filters ListFilters) ([]Purchase, int, error) {
	var out []Purchase
	for _, p := range r.purchases {
		if filters.ProductID != 0 && p.ProductID != filters.ProductID {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (tx *memoryPurchaseTx) GetProduct(ctx context.Context, productID int64) (catalog.Product, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (tx *memoryPurchaseTx) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	tx.repo.nextID++
	purchase.ID = tx.repo.nextID
	purchase.CreatedAt = time.Now()
	tx.repo.purchases[purchase.ID] = purchase
	return purchase.ID, nil
}

func (tx *memoryPurchaseTx) ApplyStockDelta(ctx context.Context, productID, delta int64) error {
	if tx.repo.failCredit != nil {
		return tx.repo.failCredit
	}
	p, ok := tx.repo.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return &shared.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Required: -delta, Available: p.Stock}
	}
	p.Stock += delta
	tx.repo.products[productID] = p
	return nil
}

func TestRecordCreditsStockWithLedgerRow(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryPurchaseRepo()
	repo.products[1] = catalog.Product{ID: 1, Name: "Flour", SKU: "CMP-FLOUR", Price: decimal.RequireFromString("2.50"), Stock: 40, Type: catalog.TypeComponent}
	svc := NewService(repo, nil, nil, nil)

	purchase, err := svc.Record(ctx, RecordInput{
		ProductID: 1,
		Qty:       60,
		UnitPrice: decimal.RequireFromString("2.35"),
		Supplier:  "Mill & Co",
	})
	require.NoError(t, err)
	require.NotZero(t, purchase.ID)
	// 60 x 2.35 = 141.00
	require.Equal(t, "141.00", purchase.TotalAmount.StringFixed(2))
	require.False(t, purchase.PurchaseDate.IsZero())

	require.Equal(t, int64(100), repo.products[1].Stock)
	require.Len(t, repo.purchases, 1)
}

func TestRecordFailureLeavesNoLedgerRow(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryPurchaseRepo()
	repo.products[1] = catalog.Product{ID: 1, Name: "Flour", Stock: 40, Type: catalog.TypeComponent}
	repo.failCredit = shared.ErrNotFound
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Record(ctx, RecordInput{
		ProductID: 1,
		Qty:       10,
		UnitPrice: decimal.RequireFromString("1.00"),
		Supplier:  "Mill & Co",
	})
	require.Error(t, err)

	// Ledger row and credit commit together or not at all.
	require.Empty(t, repo.purchases)
	require.Equal(t, int64(40), repo.products[1].Stock)
}

func TestRecordValidatesInput(t *testing.T) {
	svc := NewService(newMemoryPurchaseRepo(), nil, nil, nil)
	ctx := context.Background()
	unit := decimal.RequireFromString("1.00")

	_, err := svc.Record(ctx, RecordInput{Qty: 1, UnitPrice: unit, Supplier: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordInput{ProductID: 1, Qty: 0, UnitPrice: unit, Supplier: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordInput{ProductID: 1, Qty: 1, UnitPrice: decimal.RequireFromString("-0.01"), Supplier: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Record(ctx, RecordInput{ProductID: 1, Qty: 1, UnitPrice: unit, Supplier: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordUnknownProduct(t *testing.T) {
	svc := NewService(newMemoryPurchaseRepo(), nil, nil, nil)
	_, err := svc.Record(context.Background(), RecordInput{
		ProductID: 42,
		Qty:       1,
		UnitPrice: decimal.RequireFromString("1.00"),
		Supplier:  "Mill & Co",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc := NewService(newMemoryPurchaseRepo(), nil, nil, nil)
	now := time.Now()
	_, _, err := svc.List(context.Background(), ListFilters{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetValidatesID(t *testing.T) {
	svc := NewService(newMemoryPurchaseRepo(), nil, nil, nil)
	_, err := svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}
