package production

import (
	"context"
	"fmt"
	"time"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, batchID int64) (Batch, error)
	ListBatches(ctx context.Context, filters ListFilters) ([]Batch, int, error)
	ListConsumption(ctx context.Context, batchID int64) ([]BatchComponent, error)
}

// CachePort invalidates cached products after stock moves.
type CachePort interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// AuditPort records batch operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key string) error
}

// Service executes the production workflow: verify component stock, deduct
// it, record consumption, credit the finished product and complete the
// batch, all inside one transaction, so either every mutation of a batch
// lands or none do.
type Service struct {
	repo        RepositoryPort
	cache       CachePort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
}

// MetricsPort counts rejected stock mutations.
type MetricsPort interface {
	ObserveStockShortfall()
}

// NewService builds Service. cache, audit and idempotency may be nil.
func NewService(repo RepositoryPort, cache CachePort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, idempotency: idem}
}

// WithMetrics attaches the shortfall counter.
func (s *Service) WithMetrics(m MetricsPort) *Service {
	s.metrics = m
	return s
}

func (s *Service) observeShortfall(err error) {
	if s.metrics != nil && shared.IsInsufficientStock(err) {
		s.metrics.ObserveStockShortfall()
	}
}

// Produce plans and completes a batch in a single transaction. On any
// failure nothing persists: no orphaned in_progress batch, no partial
// component deduction.
func (s *Service) Produce(ctx context.Context, input ProduceInput) (Batch, error) {
	if err := validateInput(input); err != nil {
		return Batch{}, err
	}

	release, err := s.claim(ctx, input.IdempotencyKey)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	var touched []int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, ids, err := runBatch(ctx, tx, input)
		if err != nil {
			return err
		}
		batch = b
		touched = ids
		return nil
	})
	if err != nil {
		release()
		s.observeShortfall(err)
		return Batch{}, err
	}

	s.invalidate(ctx, touched...)
	s.recordAudit(ctx, "BATCH_PRODUCE", batch, input.ActorID)
	return batch, nil
}

// Plan creates an in_progress batch without moving any stock. The stock
// transfer happens later in Complete, or never if the batch is cancelled.
func (s *Service) Plan(ctx context.Context, input ProduceInput) (Batch, error) {
	if err := validateInput(input); err != nil {
		return Batch{}, err
	}

	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductTyped(ctx, input.FinishedProductID, catalog.TypeFinished); err != nil {
			return err
		}
		lines, err := tx.ListRecipe(ctx, input.FinishedProductID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyRecipe
		}
		batch = Batch{FinishedProductID: input.FinishedProductID, Qty: input.Qty, Status: StatusInProgress, Notes: input.Notes}
		id, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "BATCH_PLAN", batch, input.ActorID)
	return batch, nil
}

// Complete runs the stock transfer for a planned batch.
func (s *Service) Complete(ctx context.Context, batchID, actorID int64) (Batch, error) {
	if batchID <= 0 {
		return Batch{}, fmt.Errorf("production: invalid batch id: %w", shared.ErrValidation)
	}

	var batch Batch
	var touched []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != StatusInProgress {
			return fmt.Errorf("production: batch %d is %s: %w", batchID, b.Status, shared.ErrInvalidState)
		}
		ids, err := transferStock(ctx, tx, b)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := tx.UpdateBatchStatus(ctx, b.ID, StatusInProgress, StatusCompleted, &now); err != nil {
			return err
		}
		b.Status = StatusCompleted
		b.CompletedAt = &now
		batch = b
		touched = ids
		return nil
	})
	if err != nil {
		s.observeShortfall(err)
		return Batch{}, err
	}

	s.invalidate(ctx, touched...)
	s.recordAudit(ctx, "BATCH_COMPLETE", batch, actorID)
	return batch, nil
}

// Cancel abandons a planned batch. Completed batches cannot be cancelled;
// their stock has already moved.
func (s *Service) Cancel(ctx context.Context, batchID, actorID int64) (Batch, error) {
	if batchID <= 0 {
		return Batch{}, fmt.Errorf("production: invalid batch id: %w", shared.ErrValidation)
	}

	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != StatusInProgress {
			return fmt.Errorf("production: batch %d is %s: %w", batchID, b.Status, shared.ErrInvalidState)
		}
		if err := tx.UpdateBatchStatus(ctx, b.ID, StatusInProgress, StatusCancelled, nil); err != nil {
			return err
		}
		b.Status = StatusCancelled
		batch = b
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "BATCH_CANCEL", batch, actorID)
	return batch, nil
}

// GetBatch returns a batch with its consumption ledger.
func (s *Service) GetBatch(ctx context.Context, batchID int64) (Batch, []BatchComponent, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	components, err := s.repo.ListConsumption(ctx, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	return batch, components, nil
}

// ListBatches returns batches matching the filters.
func (s *Service) ListBatches(ctx context.Context, filters ListFilters) ([]Batch, int, error) {
	return s.repo.ListBatches(ctx, filters)
}

// runBatch is the one-shot path: plan, transfer, complete within the
// caller's transaction.
func runBatch(ctx context.Context, tx TxRepository, input ProduceInput) (Batch, []int64, error) {
	if _, err := tx.GetProductTyped(ctx, input.FinishedProductID, catalog.TypeFinished); err != nil {
		return Batch{}, nil, err
	}
	batch := Batch{FinishedProductID: input.FinishedProductID, Qty: input.Qty, Status: StatusInProgress, Notes: input.Notes}
	id, err := tx.InsertBatch(ctx, batch)
	if err != nil {
		return Batch{}, nil, err
	}
	batch.ID = id

	touched, err := transferStock(ctx, tx, batch)
	if err != nil {
		return Batch{}, nil, err
	}

	now := time.Now()
	if err := tx.UpdateBatchStatus(ctx, batch.ID, StatusInProgress, StatusCompleted, &now); err != nil {
		return Batch{}, nil, err
	}
	batch.Status = StatusCompleted
	batch.CompletedAt = &now
	return batch, touched, nil
}

// transferStock deducts every recipe line and credits the finished product.
// Each deduction is conditional on sufficient stock, so the first short
// component aborts the transaction with stock untouched.
func transferStock(ctx context.Context, tx TxRepository, batch Batch) ([]int64, error) {
	lines, err := tx.ListRecipe(ctx, batch.FinishedProductID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyRecipe
	}

	touched := make([]int64, 0, len(lines)+1)
	for _, line := range lines {
		required := line.QtyRequired * batch.Qty
		if err := tx.ApplyStockDelta(ctx, line.ComponentID, -required); err != nil {
			return nil, err
		}
		if err := tx.InsertBatchComponent(ctx, BatchComponent{BatchID: batch.ID, ComponentID: line.ComponentID, QtyUsed: required}); err != nil {
			return nil, err
		}
		touched = append(touched, line.ComponentID)
	}

	if err := tx.ApplyStockDelta(ctx, batch.FinishedProductID, batch.Qty); err != nil {
		return nil, err
	}
	return append(touched, batch.FinishedProductID), nil
}

func validateInput(input ProduceInput) error {
	if input.FinishedProductID <= 0 {
		return fmt.Errorf("production: finished product required: %w", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return fmt.Errorf("production: quantity must be > 0: %w", shared.ErrValidation)
	}
	return nil
}

func (s *Service) claim(ctx context.Context, key string) (func(), error) {
	if s.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "production"); err != nil {
		return nil, err
	}
	return func() { _ = s.idempotency.Release(ctx, key) }, nil
}

func (s *Service) invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	_ = s.cache.Invalidate(ctx, ids...)
}

func (s *Service) recordAudit(ctx context.Context, action string, batch Batch, actorID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_batch",
		EntityID: fmt.Sprintf("%d", batch.ID),
		Meta: map[string]any{
			"finished_product_id": batch.FinishedProductID,
			"quantity":            batch.Qty,
			"status":              string(batch.Status),
		},
	})
}
