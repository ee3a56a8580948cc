package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stockforge/stockforge/internal/shared"
)

// ApplyStockDelta is the shared stock-mutation contract used by the
// production, purchasing and sales workflows. The decrement is conditional
// on sufficient stock, so concurrent operations cannot jointly overdraw a
// product: the guard and the write are a single statement.
func ApplyStockDelta(ctx context.Context, tx pgx.Tx, productID, delta int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1 AND stock + $2 >= 0`,
		productID, delta)
	if err != nil {
		return fmt.Errorf("catalog: apply stock delta: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the product is gone or the deduction overdraws it.
	var name string
	var stock int64
	err = tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("catalog: product %d: %w", productID, shared.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("catalog: apply stock delta: %w", err)
	}
	return &shared.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Required:    -delta,
		Available:   stock,
	}
}

// GetForUpdate loads a product inside tx, locking the row.
func GetForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (Product, error) {
	return scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID))
}

// GetTyped loads a product inside tx and checks its type.
func GetTyped(ctx context.Context, tx pgx.Tx, productID int64, want ProductType) (Product, error) {
	row := tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, err
	}
	if p.Type != want {
		return Product{}, fmt.Errorf("catalog: product %q is not a %s product: %w", p.Name, want, shared.ErrValidation)
	}
	return p, nil
}
