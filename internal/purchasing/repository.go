package purchasing

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/platform/db"
	"github.com/stockforge/stockforge/internal/shared"
)

// Repository persists purchases in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetProduct(ctx context.Context, productID int64) (catalog.Product, error)
	InsertPurchase(ctx context.Context, purchase Purchase) (int64, error)
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

const purchaseColumns = `id, product_id, quantity, unit_price, supplier, purchase_date, total_amount, notes, created_at`

// Get loads a single purchase.
func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id).
		Scan(&p.ID, &p.ProductID, &p.Qty, &p.UnitPrice, &p.Supplier, &p.PurchaseDate, &p.TotalAmount, &p.Notes, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, shared.ErrNotFound
	}
	return p, err
}

// List returns purchases matching the filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Purchase, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.ProductID != 0 {
		argCount++
		where += ` AND product_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.ProductID)
	}
	if !filters.From.IsZero() {
		argCount++
		where += ` AND purchase_date >= $` + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		where += ` AND purchase_date <= $` + strconv.Itoa(argCount)
		args = append(args, filters.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + purchaseColumns + ` FROM purchases` + where + ` ORDER BY purchase_date DESC, id DESC`
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

	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Qty, &p.UnitPrice, &p.Supplier, &p.PurchaseDate, &p.TotalAmount, &p.Notes, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (catalog.Product, error) {
	return catalog.GetForUpdate(ctx, r.tx, productID)
}

func (r *txRepository) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO purchases (product_id, quantity, unit_price, supplier, purchase_date, total_amount, notes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		purchase.ProductID, purchase.Qty, purchase.UnitPrice, purchase.Supplier, purchase.PurchaseDate, purchase.TotalAmount, purchase.Notes,
	).Scan(&id)
	return id, err
}

func (r *txRepository) ApplyStockDelta(ctx context.Context, productID, delta int64) error {
	return catalog.ApplyStockDelta(ctx, r.tx, productID, delta)
}
