package recipe

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/platform/db"
	"github.com/stockforge/stockforge/internal/shared"
)

// Repository persists bill-of-materials data in PostgreSQL.
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
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	DeleteEntry(ctx context.Context, entryID int64) (int64, error)
	ListEntries(ctx context.Context, finishedProductID int64) ([]EntryDetail, error)
	SetFinishedPrice(ctx context.Context, finishedProductID int64, price decimal.Decimal) error
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

const entryDetailQuery = `
SELECT r.id, r.finished_product_id, r.component_id, r.quantity_required, r.created_at,
       p.name, p.sku, p.price, p.stock
FROM product_recipes r
JOIN products p ON p.id = r.component_id
WHERE r.finished_product_id = $1
ORDER BY r.id`

// GetRecipe lists the recipe lines with each component's current snapshot.
func (r *Repository) GetRecipe(ctx context.Context, finishedProductID int64) ([]EntryDetail, error) {
	rows, err := r.pool.Query(ctx, entryDetailQuery, finishedProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryDetails(rows)
}

func (r *txRepository) GetProductTyped(ctx context.Context, productID int64, want catalog.ProductType) (catalog.Product, error) {
	return catalog.GetTyped(ctx, r.tx, productID, want)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO product_recipes (finished_product_id, component_id, quantity_required, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id`,
		entry.FinishedProductID, entry.ComponentID, entry.QtyRequired,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateComponent
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) (int64, error) {
	var finishedID int64
	err := r.tx.QueryRow(ctx,
		`DELETE FROM product_recipes WHERE id = $1 RETURNING finished_product_id`, entryID,
	).Scan(&finishedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return finishedID, err
}

func (r *txRepository) ListEntries(ctx context.Context, finishedProductID int64) ([]EntryDetail, error) {
	rows, err := r.tx.Query(ctx, entryDetailQuery, finishedProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryDetails(rows)
}

func (r *txRepository) SetFinishedPrice(ctx context.Context, finishedProductID int64, price decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE products SET price = $2, updated_at = NOW() WHERE id = $1`, finishedProductID, price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanEntryDetails(rows pgx.Rows) ([]EntryDetail, error) {
	var entries []EntryDetail
	for rows.Next() {
		var e EntryDetail
		err := rows.Scan(&e.ID, &e.FinishedProductID, &e.ComponentID, &e.QtyRequired, &e.CreatedAt,
			&e.ComponentName, &e.ComponentSKU, &e.ComponentPrice, &e.ComponentStock)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
