package production

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/recipe"
	"github.com/stockforge/stockforge/internal/shared"
	_ "github.com/stockforge/stockforge/internal/testing/guard"
)

type memoryRepo struct {
	products   map[int64]catalog.Product
	recipes    map[int64][]recipe.EntryDetail
	batches    map[int64]Batch
	components []BatchComponent
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: make(map[int64]catalog.Product),
		recipes:  make(map[int64][]recipe.EntryDetail),
		batches:  make(map[int64]Batch),
	}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	snap := newMemoryRepo()
	for k, v := range r.products {
		snap.products[k] = v
	}
	for k, v := range r.recipes {
		snap.recipes[k] = append([]recipe.EntryDetail(nil), v...)
	}
	for k, v := range r.batches {
		snap.batches[k] = v
	}
	snap.components = append([]BatchComponent(nil), r.components...)
	snap.nextID = r.nextID
	return snap
}

func (r *memoryRepo) restore(snap *memoryRepo) {
	r.products = snap.products
	r.recipes = snap.recipes
	r.batches = snap.batches
	r.components = snap.components
	r.nextID = snap.nextID
}

// WithTx mimics transactional semantics: on error every mutation made by
// the callback is rolled back.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	b, ok := r.batches[batchID]
	if !ok {
		return Batch{}, shared.ErrNotFound
	}
	return b, nil
}

func (r *memoryRepo) ListBatches(ctx context.Context, filters ListFilters) ([]Batch, int, error) {
	var out []Batch
	for _, b := range r.batches {
		if filters.Status != "" && b.Status != filters.Status {
			continue
		}
		if filters.FinishedProductID != 0 && b.FinishedProductID != filters.FinishedProductID {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListConsumption(ctx context.Context, batchID int64) ([]BatchComponent, error) {
	var out []BatchComponent
	for _, c := range r.components {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProductTyped(ctx context.Context, productID int64, want catalog.ProductType) (catalog.Product, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	if p.Type != want {
		return catalog.Product{}, shared.ErrValidation
	}
	return p, nil
}

func (tx *memoryTx) ListRecipe(ctx context.Context, finishedProductID int64) ([]recipe.EntryDetail, error) {
	return append([]recipe.EntryDetail(nil), tx.repo.recipes[finishedProductID]...), nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	batch.CreatedAt = time.Now()
	tx.repo.batches[batch.ID] = batch
	return batch.ID, nil
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	return tx.repo.GetBatch(ctx, batchID)
}

func (tx *memoryTx) UpdateBatchStatus(ctx context.Context, batchID int64, from, to BatchStatus, completedAt *time.Time) error {
	b, ok := tx.repo.batches[batchID]
	if !ok || b.Status != from {
		return shared.ErrInvalidState
	}
	b.Status = to
	b.CompletedAt = completedAt
	tx.repo.batches[batchID] = b
	return nil
}

func (tx *memoryTx) InsertBatchComponent(ctx context.Context, component BatchComponent) error {
	tx.repo.nextID++
	component.ID = tx.repo.nextID
	tx.repo.components = append(tx.repo.components, component)
	return nil
}

func (tx *memoryTx) ApplyStockDelta(ctx context.Context, productID, delta int64) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return &shared.InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Required:    -delta,
			Available:   p.Stock,
		}
	}
	p.Stock += delta
	tx.repo.products[productID] = p
	return nil
}

type fakeCache struct {
	invalidated []int64
}

func (c *fakeCache) Invalidate(ctx context.Context, ids ...int64) error {
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (a *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fakeIdempotency struct {
	claimed  map[string]bool
	released []string
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.claimed == nil {
		f.claimed = make(map[string]bool)
	}
	if f.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	f.claimed[key] = true
	return nil
}

func (f *fakeIdempotency) Release(ctx context.Context, key string) error {
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedBakery(repo *memoryRepo) {
	repo.products[1] = catalog.Product{ID: 1, Name: "Flour", SKU: "CMP-FLOUR", Price: price("2.50"), Stock: 100, Type: catalog.TypeComponent}
	repo.products[2] = catalog.Product{ID: 2, Name: "Butter", SKU: "CMP-BUTTER", Price: price("3.20"), Stock: 10, Type: catalog.TypeComponent}
	repo.products[3] = catalog.Product{ID: 3, Name: "Cake", SKU: "FIN-CAKE", Price: price("11.83"), Stock: 0, Type: catalog.TypeFinished}
	repo.recipes[3] = []recipe.EntryDetail{
		{Entry: recipe.Entry{ID: 10, FinishedProductID: 3, ComponentID: 1, QtyRequired: 2}, ComponentName: "Flour", ComponentPrice: price("2.50"), ComponentStock: 100},
		{Entry: recipe.Entry{ID: 11, FinishedProductID: 3, ComponentID: 2, QtyRequired: 1}, ComponentName: "Butter", ComponentPrice: price("3.20"), ComponentStock: 10},
	}
}

func TestProduceTransfersStockAtomically(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	cache := &fakeCache{}
	audit := &fakeAudit{}
	svc := NewService(repo, cache, audit, &fakeIdempotency{})

	batch, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 5, Notes: "morning run"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, batch.Status)
	require.NotNil(t, batch.CompletedAt)

	require.Equal(t, int64(90), repo.products[1].Stock)
	require.Equal(t, int64(5), repo.products[2].Stock)
	require.Equal(t, int64(5), repo.products[3].Stock)

	ledger, err := repo.ListConsumption(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	require.Equal(t, int64(10), ledger[0].QtyUsed)
	require.Equal(t, int64(5), ledger[1].QtyUsed)

	require.Contains(t, cache.invalidated, int64(1))
	require.Contains(t, cache.invalidated, int64(2))
	require.Contains(t, cache.invalidated, int64(3))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "BATCH_PRODUCE", audit.logs[0].Action)
}

func TestProduceShortComponentRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	idem := &fakeIdempotency{}
	svc := NewService(repo, &fakeCache{}, nil, idem)

	// Butter covers at most 10 cakes; flour is plentiful.
	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 11, IdempotencyKey: "batch-11"})
	require.Error(t, err)
	require.True(t, shared.IsInsufficientStock(err))

	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "Butter", stockErr.ProductName)
	require.Equal(t, int64(11), stockErr.Required)
	require.Equal(t, int64(10), stockErr.Available)

	// Nothing persisted: no batch row, no ledger, stocks untouched.
	require.Empty(t, repo.batches)
	require.Empty(t, repo.components)
	require.Equal(t, int64(100), repo.products[1].Stock)
	require.Equal(t, int64(10), repo.products[2].Stock)
	require.Equal(t, int64(0), repo.products[3].Stock)

	// The claim is released so a retry after restocking can reuse the key.
	require.Equal(t, []string{"batch-11"}, idem.released)
}

func TestProduceEmptyRecipeRejected(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	repo.products[3] = catalog.Product{ID: 3, Name: "Cake", Price: price("0.00"), Type: catalog.TypeFinished}
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 1})
	require.ErrorIs(t, err, ErrEmptyRecipe)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.batches)
}

func TestProduceRequiresFinishedProduct(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 1, Qty: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.batches)
}

func TestProduceValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)

	_, err := svc.Produce(context.Background(), ProduceInput{FinishedProductID: 3, Qty: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Produce(context.Background(), ProduceInput{FinishedProductID: 0, Qty: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProduceDuplicateSubmissionRejected(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, &fakeIdempotency{})

	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 1, IdempotencyKey: "once"})
	require.NoError(t, err)

	_, err = svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 1, IdempotencyKey: "once"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.batches, 1)
}

func TestBatchLifecyclePlanCompleteCancel(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, &fakeCache{}, nil, nil)

	planned, err := svc.Plan(ctx, ProduceInput{FinishedProductID: 3, Qty: 2})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, planned.Status)
	// Planning moves no stock.
	require.Equal(t, int64(100), repo.products[1].Stock)
	require.Equal(t, int64(0), repo.products[3].Stock)

	completed, err := svc.Complete(ctx, planned.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.Equal(t, int64(96), repo.products[1].Stock)
	require.Equal(t, int64(2), repo.products[3].Stock)

	// Completing twice must fail and must not move stock again.
	_, err = svc.Complete(ctx, planned.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, int64(96), repo.products[1].Stock)

	// A completed batch cannot be cancelled.
	_, err = svc.Cancel(ctx, planned.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCancelPlannedBatch(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, nil)

	planned, err := svc.Plan(ctx, ProduceInput{FinishedProductID: 3, Qty: 4})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, planned.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.CompletedAt)

	// No stock moved, no ledger written.
	require.Equal(t, int64(100), repo.products[1].Stock)
	require.Equal(t, int64(10), repo.products[2].Stock)
	require.Empty(t, repo.components)

	// A cancelled batch cannot be completed afterwards.
	_, err = svc.Complete(ctx, planned.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCompleteShortBatchStaysPlanned(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, nil)

	planned, err := svc.Plan(ctx, ProduceInput{FinishedProductID: 3, Qty: 20})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, planned.ID, 7)
	require.True(t, shared.IsInsufficientStock(err))

	// The batch survives in_progress and can be cancelled once the
	// shortage is acknowledged.
	current, getErr := repo.GetBatch(ctx, planned.ID)
	require.NoError(t, getErr)
	require.Equal(t, StatusInProgress, current.Status)
	require.Equal(t, int64(100), repo.products[1].Stock)

	_, err = svc.Cancel(ctx, planned.ID, 7)
	require.NoError(t, err)
}

func TestSequentialProduceConsumesSharedComponent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, nil)

	// Butter stock covers exactly ten units. Two submissions of six must
	// not jointly overdraw it: the second observes the post-deduction
	// stock and fails.
	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 6})
	require.NoError(t, err)

	_, err = svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 6})
	require.True(t, shared.IsInsufficientStock(err))

	require.Equal(t, int64(4), repo.products[2].Stock)
	require.Equal(t, int64(6), repo.products[3].Stock)
	require.Len(t, repo.batches, 1)
}

func TestGetBatchReturnsLedger(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, nil)

	batch, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 2})
	require.NoError(t, err)

	got, ledger, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, batch.ID, got.ID)
	require.Len(t, ledger, 2)

	_, _, err = svc.GetBatch(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListBatchesFilters(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 1})
	require.NoError(t, err)
	planned, err := svc.Plan(ctx, ProduceInput{FinishedProductID: 3, Qty: 1})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, planned.ID, 0)
	require.NoError(t, err)

	completed, total, err := svc.ListBatches(ctx, ListFilters{Status: StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, completed, 1)

	cancelled, _, err := svc.ListBatches(ctx, ListFilters{Status: StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
}

func TestProduceRollbackIsComplete(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedBakery(repo)
	// Recipe where the second line fails after the first deducted.
	repo.recipes[3] = []recipe.EntryDetail{
		{Entry: recipe.Entry{FinishedProductID: 3, ComponentID: 1, QtyRequired: 1}, ComponentName: "Flour", ComponentPrice: price("2.50")},
		{Entry: recipe.Entry{FinishedProductID: 3, ComponentID: 2, QtyRequired: 100}, ComponentName: "Butter", ComponentPrice: price("3.20")},
	}
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Produce(ctx, ProduceInput{FinishedProductID: 3, Qty: 1})
	require.Error(t, err)
	require.True(t, shared.IsInsufficientStock(err))

	// The flour deduction from the first line must have been rolled back.
	require.Equal(t, int64(100), repo.products[1].Stock)
	require.Empty(t, repo.batches)
	require.Empty(t, repo.components)
	require.False(t, errors.Is(err, shared.ErrNotFound))
}
