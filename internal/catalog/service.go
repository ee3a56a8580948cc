package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/stockforge/stockforge/internal/shared"
)

// Service coordinates catalog reads and writes.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService builds Service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("catalog: invalid product id: %w", shared.ErrValidation)
	}
	if p, ok := s.cache.GetProduct(ctx, id); ok {
		return p, nil
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.cache.SetProduct(ctx, p)
	return p, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (Product, error) {
	if strings.TrimSpace(sku) == "" {
		return Product{}, fmt.Errorf("catalog: sku required: %w", shared.ErrValidation)
	}
	return s.repo.GetBySKU(ctx, sku)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return fmt.Errorf("catalog: invalid product id: %w", shared.ErrValidation)
	}
	if err := s.validate(product); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, product); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("catalog: invalid product id: %w", shared.ErrValidation)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("catalog: product name is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("catalog: product sku is required: %w", shared.ErrValidation)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("catalog: price must be >= 0: %w", shared.ErrValidation)
	}
	if p.Stock < 0 {
		return fmt.Errorf("catalog: stock must be >= 0: %w", shared.ErrValidation)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("catalog: unknown product type %q: %w", p.Type, shared.ErrValidation)
	}
	return nil
}
