package production

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/platform/db"
	"github.com/stockforge/stockforge/internal/recipe"
	"github.com/stockforge/stockforge/internal/shared"
)

// Repository persists production batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetProductTyped(ctx context.Context, productID int64, want catalog.ProductType) (catalog.Product, error)
	ListRecipe(ctx context.Context, finishedProductID int64) ([]recipe.EntryDetail, error)
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error)
	UpdateBatchStatus(ctx context.Context, batchID int64, from, to BatchStatus, completedAt *time.Time) error
	InsertBatchComponent(ctx context.Context, component BatchComponent) error
	ApplyStockDelta(ctx context.Context, productID, delta int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, finished_product_id, quantity_produced, status, notes, created_at, completed_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.FinishedProductID, &b.Qty, &b.Status, &b.Notes, &b.CreatedAt, &b.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, shared.ErrNotFound
	}
	return b, err
}

// GetBatch loads a single batch.
func (r *Repository) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id = $1`, batchID))
}

// ListBatches returns batches matching the filters, newest first.
func (r *Repository) ListBatches(ctx context.Context, filters ListFilters) ([]Batch, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.FinishedProductID != 0 {
		argCount++
		where += ` AND finished_product_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.FinishedProductID)
	}
	if filters.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, string(filters.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_batches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + batchColumns + ` FROM production_batches` + where + ` ORDER BY created_at DESC, id DESC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.FinishedProductID, &b.Qty, &b.Status, &b.Notes, &b.CreatedAt, &b.CompletedAt); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

// ListConsumption returns the consumption ledger for a batch.
func (r *Repository) ListConsumption(ctx context.Context, batchID int64) ([]BatchComponent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, component_id, quantity_used FROM production_batch_components WHERE batch_id = $1 ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []BatchComponent
	for rows.Next() {
		var c BatchComponent
		if err := rows.Scan(&c.ID, &c.BatchID, &c.ComponentID, &c.QtyUsed); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

func (r *txRepository) GetProductTyped(ctx context.Context, productID int64, want catalog.ProductType) (catalog.Product, error) {
	return catalog.GetTyped(ctx, r.tx, productID, want)
}

func (r *txRepository) ListRecipe(ctx context.Context, finishedProductID int64) ([]recipe.EntryDetail, error) {
	rows, err := r.tx.Query(ctx, `
SELECT r.id, r.finished_product_id, r.component_id, r.quantity_required, r.created_at,
       p.name, p.sku, p.price, p.stock
FROM product_recipes r
JOIN products p ON p.id = r.component_id
WHERE r.finished_product_id = $1
ORDER BY r.id`, finishedProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []recipe.EntryDetail
	for rows.Next() {
		var e recipe.EntryDetail
		err := rows.Scan(&e.ID, &e.FinishedProductID, &e.ComponentID, &e.QtyRequired, &e.CreatedAt,
			&e.ComponentName, &e.ComponentSKU, &e.ComponentPrice, &e.ComponentStock)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO production_batches (finished_product_id, quantity_produced, status, notes, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		batch.FinishedProductID, batch.Qty, string(batch.Status), batch.Notes,
	).Scan(&id)
	return id, err
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	return scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id = $1 FOR UPDATE`, batchID))
}

// UpdateBatchStatus transitions a batch; the from-state guard is part of the
// statement so a stale caller cannot double-complete a batch.
func (r *txRepository) UpdateBatchStatus(ctx context.Context, batchID int64, from, to BatchStatus, completedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE production_batches SET status = $3, completed_at = $4 WHERE id = $1 AND status = $2`,
		batchID, string(from), string(to), completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvalidState
	}
	return nil
}

func (r *txRepository) InsertBatchComponent(ctx context.Context, component BatchComponent) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO production_batch_components (batch_id, component_id, quantity_used) VALUES ($1, $2, $3)`,
		component.BatchID, component.ComponentID, component.QtyUsed)
	return err
}

func (r *txRepository) ApplyStockDelta(ctx context.Context, productID, delta int64) error {
	return catalog.ApplyStockDelta(ctx, r.tx, productID, delta)
}
