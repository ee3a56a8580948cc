package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockforge/stockforge/internal/shared"
	_ "github.com/stockforge/stockforge/internal/testing/guard"
)

type memoryProductRepo struct {
	products map[int64]Product
	nextID   int64
	getCalls int
}

func newMemoryProductRepo() *memoryProductRepo {
	return &memoryProductRepo{products: make(map[int64]Product)}
}

func (r *memoryProductRepo) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if filters.Type != "" && p.Type != filters.Type {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryProductRepo) Get(ctx context.Context, id int64) (Product, error) {
	r.getCalls++
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryProductRepo) GetBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryProductRepo) Create(ctx context.Context, product Product) (Product, error) {
	for _, existing := range r.products {
		if existing.SKU == product.SKU {
			return Product{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	product.ID = r.nextID
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryProductRepo) Update(ctx context.Context, id int64, product Product) error {
	existing, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now()
	r.products[id] = product
	return nil
}

func (r *memoryProductRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func validProduct() Product {
	return Product{
		Name:     "Flour",
		SKU:      "CMP-FLOUR",
		Price:    decimal.RequireFromString("2.50"),
		Stock:    100,
		Category: "baking",
		Type:     TypeComponent,
	}
}

func TestCreateValidatesProduct(t *testing.T) {
	svc := NewService(newMemoryProductRepo(), nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Product)
	}{
		{"missing name", func(p *Product) { p.Name = " " }},
		{"missing sku", func(p *Product) { p.SKU = "" }},
		{"negative price", func(p *Product) { p.Price = decimal.RequireFromString("-1") }},
		{"negative stock", func(p *Product) { p.Stock = -1 }},
		{"unknown type", func(p *Product) { p.Type = "bundle" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProduct()
			tc.mutate(&p)
			_, err := svc.Create(ctx, p)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateDuplicateSKU(t *testing.T) {
	svc := NewService(newMemoryProductRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	_, err = svc.Create(ctx, validProduct())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestGetReadsThroughCache(t *testing.T) {
	repo := newMemoryProductRepo()
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	first, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.SKU, first.SKU)
	require.Equal(t, 1, repo.getCalls)

	// Second read is served from the cache.
	second, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, repo.getCalls)
	require.True(t, first.Price.Equal(second.Price))
}

func TestUpdateInvalidatesCachedProduct(t *testing.T) {
	repo := newMemoryProductRepo()
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)

	updated := created
	updated.Stock = 55
	require.NoError(t, svc.Update(ctx, created.ID, updated))

	// The stale cache entry is gone: the next read hits the repository.
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(55), got.Stock)
	require.Equal(t, 2, repo.getCalls)
}

func TestDeleteInvalidatesCachedProduct(t *testing.T) {
	repo := newMemoryProductRepo()
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)
	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetBySKU(t *testing.T) {
	repo := newMemoryProductRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	got, err := svc.GetBySKU(ctx, created.SKU)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = svc.GetBySKU(ctx, " ")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.GetBySKU(ctx, "NOPE")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListFiltersByType(t *testing.T) {
	repo := newMemoryProductRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)
	finished := validProduct()
	finished.SKU = "FIN-CAKE"
	finished.Name = "Cake"
	finished.Type = TypeFinished
	_, err = svc.Create(ctx, finished)
	require.NoError(t, err)

	components, total, err := svc.List(ctx, ListFilters{Type: TypeComponent})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, TypeComponent, components[0].Type)
}

func TestCacheIsNilSafe(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, ok := cache.GetProduct(ctx, 1)
	require.False(t, ok)
	cache.SetProduct(ctx, Product{ID: 1})
	require.NoError(t, cache.Invalidate(ctx, 1))
}
