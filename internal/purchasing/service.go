package purchasing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockforge/stockforge/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Purchase, error)
	List(ctx context.Context, filters ListFilters) ([]Purchase, int, error)
}

// CachePort invalidates cached products after stock credits.
type CachePort interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// AuditPort records purchase intake.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key string) error
}

// Service records purchase intake: the ledger row and the stock credit
// commit together or not at all.
type Service struct {
	repo        RepositoryPort
	cache       CachePort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService builds Service. cache, audit and idempotency may be nil.
func NewService(repo RepositoryPort, cache CachePort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, idempotency: idem}
}

// Record persists a purchase and credits the product's stock.
func (s *Service) Record(ctx context.Context, input RecordInput) (Purchase, error) {
	if input.ProductID <= 0 {
		return Purchase{}, fmt.Errorf("purchasing: product required: %w", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return Purchase{}, fmt.Errorf("purchasing: quantity must be > 0: %w", shared.ErrValidation)
	}
	if input.UnitPrice.IsNegative() {
		return Purchase{}, fmt.Errorf("purchasing: unit price must be >= 0: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(input.Supplier) == "" {
		return Purchase{}, fmt.Errorf("purchasing: supplier required: %w", shared.ErrValidation)
	}
	if input.PurchaseDate.IsZero() {
		input.PurchaseDate = time.Now()
	}

	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "purchasing"); err != nil {
			return Purchase{}, err
		}
	}

	purchase := Purchase{
		ProductID:    input.ProductID,
		Qty:          input.Qty,
		UnitPrice:    input.UnitPrice,
		Supplier:     input.Supplier,
		PurchaseDate: input.PurchaseDate,
		TotalAmount:  input.UnitPrice.Mul(decimal.NewFromInt(input.Qty)).Round(2),
		Notes:        input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProduct(ctx, input.ProductID); err != nil {
			return err
		}
		id, err := tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		return tx.ApplyStockDelta(ctx, input.ProductID, input.Qty)
	})
	if err != nil {
		if s.idempotency != nil && input.IdempotencyKey != "" {
			_ = s.idempotency.Release(ctx, input.IdempotencyKey)
		}
		return Purchase{}, err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, input.ProductID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "PURCHASE_RECORD",
			Entity:   "purchase",
			EntityID: fmt.Sprintf("%d", purchase.ID),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"quantity":   input.Qty,
				"supplier":   input.Supplier,
				"total":      purchase.TotalAmount.StringFixed(2),
			},
		})
	}
	return purchase, nil
}

// Get returns a single purchase.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	if id <= 0 {
		return Purchase{}, fmt.Errorf("purchasing: invalid purchase id: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns purchases within the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Purchase, int, error) {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return nil, 0, fmt.Errorf("purchasing: date range end before start: %w", shared.ErrValidation)
	}
	return s.repo.List(ctx, filters)
}
