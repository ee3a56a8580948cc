package sales

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockforge/stockforge/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, orderID int64) (Order, error)
	ListItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error)
}

// CachePort invalidates cached products after stock moves.
type CachePort interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// AuditPort records checkout operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key string) error
}

// Service runs checkout. Every line is validated against the live product
// row inside the transaction, not against whatever the client saw when it
// built the cart: a line that went short since then rejects the whole order.
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

// Checkout creates the order, its items and the stock debits in one
// transaction. SKU and price are snapshotted from the product rows as they
// stand at commit time.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (Order, []OrderItem, error) {
	if err := validateInput(input); err != nil {
		return Order{}, nil, err
	}

	release, err := s.claim(ctx, input.IdempotencyKey)
	if err != nil {
		return Order{}, nil, err
	}

	var order Order
	var items []OrderItem
	touched := make([]int64, 0, len(input.Lines))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total := decimal.Zero
		items = make([]OrderItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if product.Stock < line.Qty {
				return &shared.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Required:    line.Qty,
					Available:   product.Stock,
				}
			}
			items = append(items, OrderItem{
				ProductID: product.ID,
				SKU:       product.SKU,
				Qty:       line.Qty,
				Price:     product.Price,
			})
			total = total.Add(product.Price.Mul(decimal.NewFromInt(line.Qty)))
		}

		order = Order{Status: StatusPaid, PaymentMethod: input.PaymentMethod, TotalAmount: total.Round(2)}
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID

		for i := range items {
			items[i].OrderID = orderID
			if err := tx.InsertOrderItem(ctx, items[i]); err != nil {
				return err
			}
			if err := tx.ApplyStockDelta(ctx, items[i].ProductID, -items[i].Qty); err != nil {
				return err
			}
			touched = append(touched, items[i].ProductID)
		}
		return nil
	})
	if err != nil {
		release()
		if s.metrics != nil && shared.IsInsufficientStock(err) {
			s.metrics.ObserveStockShortfall()
		}
		return Order{}, nil, err
	}

	s.invalidate(ctx, touched...)
	s.recordAudit(ctx, order, input.ActorID)
	return order, items, nil
}

// GetOrder returns an order with its items.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, []OrderItem, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

// ListOrders returns orders matching the filters.
func (s *Service) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return nil, 0, fmt.Errorf("sales: range end before start: %w", shared.ErrValidation)
	}
	return s.repo.ListOrders(ctx, filters)
}

func validateInput(input CheckoutInput) error {
	if len(input.Lines) == 0 {
		return fmt.Errorf("sales: order has no lines: %w", shared.ErrValidation)
	}
	if !input.PaymentMethod.Valid() {
		return fmt.Errorf("sales: unknown payment method %q: %w", input.PaymentMethod, shared.ErrValidation)
	}
	seen := make(map[int64]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID <= 0 {
			return fmt.Errorf("sales: invalid product id: %w", shared.ErrValidation)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("sales: quantity must be > 0: %w", shared.ErrValidation)
		}
		if seen[line.ProductID] {
			return fmt.Errorf("sales: product %d listed twice: %w", line.ProductID, shared.ErrValidation)
		}
		seen[line.ProductID] = true
	}
	return nil
}

func (s *Service) claim(ctx context.Context, key string) (func(), error) {
	if s.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "sales"); err != nil {
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

func (s *Service) recordAudit(ctx context.Context, order Order, actorID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "ORDER_CHECKOUT",
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", order.ID),
		Meta: map[string]any{
			"payment_method": string(order.PaymentMethod),
			"total_amount":   order.TotalAmount.StringFixed(2),
		},
	})
}
