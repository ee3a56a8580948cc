package recipe

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecipe(ctx context.Context, finishedProductID int64) ([]EntryDetail, error)
}

// CachePort invalidates cached product entries after a reprice.
type CachePort interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// AuditPort records recipe mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the bill of materials and the derived finished-product price.
// Every entry mutation recomputes the price inside the same transaction, so
// the recipe and the price can never be observed out of step.
type Service struct {
	repo    RepositoryPort
	cache   CachePort
	audit   AuditPort
	reprice singleflight.Group
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cache CachePort, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit}
}

// GetRecipe returns the full bill of materials for a finished product.
func (s *Service) GetRecipe(ctx context.Context, finishedProductID int64) ([]EntryDetail, error) {
	if finishedProductID <= 0 {
		return nil, fmt.Errorf("recipe: invalid finished product id: %w", shared.ErrValidation)
	}
	return s.repo.GetRecipe(ctx, finishedProductID)
}

// AddEntry appends a component requirement and reprices the finished product.
func (s *Service) AddEntry(ctx context.Context, finishedProductID, componentID, qtyRequired int64) (Entry, error) {
	if finishedProductID <= 0 || componentID <= 0 {
		return Entry{}, fmt.Errorf("recipe: finished product and component required: %w", shared.ErrValidation)
	}
	if qtyRequired <= 0 {
		return Entry{}, fmt.Errorf("recipe: quantity required must be > 0: %w", shared.ErrValidation)
	}

	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductTyped(ctx, finishedProductID, catalog.TypeFinished); err != nil {
			return err
		}
		if _, err := tx.GetProductTyped(ctx, componentID, catalog.TypeComponent); err != nil {
			return err
		}
		entry = Entry{FinishedProductID: finishedProductID, ComponentID: componentID, QtyRequired: qtyRequired}
		id, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return repriceInTx(ctx, tx, finishedProductID)
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, finishedProductID)
	s.recordAudit(ctx, "RECIPE_ENTRY_ADD", finishedProductID, map[string]any{"component_id": componentID, "quantity_required": qtyRequired})
	return entry, nil
}

// RemoveEntry deletes a recipe line and reprices the owning finished product.
// Changing a quantity is remove followed by add.
func (s *Service) RemoveEntry(ctx context.Context, entryID int64) error {
	if entryID <= 0 {
		return fmt.Errorf("recipe: invalid entry id: %w", shared.ErrValidation)
	}
	var finishedID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.DeleteEntry(ctx, entryID)
		if err != nil {
			return err
		}
		finishedID = id
		return repriceInTx(ctx, tx, finishedID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, finishedID)
	s.recordAudit(ctx, "RECIPE_ENTRY_REMOVE", finishedID, map[string]any{"entry_id": entryID})
	return nil
}

// Recompute re-derives the price from the current recipe and component
// prices. It is a pure function of current state, so concurrent requests for
// the same product are collapsed into one.
func (s *Service) Recompute(ctx context.Context, finishedProductID int64) (decimal.Decimal, error) {
	if finishedProductID <= 0 {
		return decimal.Zero, fmt.Errorf("recipe: invalid finished product id: %w", shared.ErrValidation)
	}
	result, err, _ := s.reprice.Do(fmt.Sprintf("reprice:%d", finishedProductID), func() (interface{}, error) {
		var price decimal.Decimal
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.GetProductTyped(ctx, finishedProductID, catalog.TypeFinished); err != nil {
				return err
			}
			entries, err := tx.ListEntries(ctx, finishedProductID)
			if err != nil {
				return err
			}
			price = DerivePrice(entries)
			return tx.SetFinishedPrice(ctx, finishedProductID, price)
		})
		return price, err
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.invalidate(ctx, finishedProductID)
	return result.(decimal.Decimal), nil
}

func repriceInTx(ctx context.Context, tx TxRepository, finishedProductID int64) error {
	entries, err := tx.ListEntries(ctx, finishedProductID)
	if err != nil {
		return err
	}
	return tx.SetFinishedPrice(ctx, finishedProductID, DerivePrice(entries))
}

func (s *Service) invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, ids...)
}

func (s *Service) recordAudit(ctx context.Context, action string, finishedID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "product_recipe",
		EntityID: fmt.Sprintf("%d", finishedID),
		Meta:     meta,
	})
}
