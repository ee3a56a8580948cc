package purchasing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is an append-only intake record. Creating one credits the
// product's stock in the same transaction.
type Purchase struct {
	ID           int64
	ProductID    int64
	Qty          int64
	UnitPrice    decimal.Decimal
	Supplier     string
	PurchaseDate time.Time
	TotalAmount  decimal.Decimal
	Notes        string
	CreatedAt    time.Time
}

// RecordInput describes a purchase intake request.
type RecordInput struct {
	ProductID      int64
	Qty            int64
	UnitPrice      decimal.Decimal
	Supplier       string
	PurchaseDate   time.Time
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// ListFilters narrows purchase listings.
type ListFilters struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}
