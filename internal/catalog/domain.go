package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ProductType separates purchasable components from manufactured goods.
type ProductType string

const (
	// TypeComponent is consumed by recipes and credited by purchases.
	TypeComponent ProductType = "component"
	// TypeFinished is assembled from components and credited by production.
	TypeFinished ProductType = "finished"
)

// Valid reports whether the type is one of the known values.
func (t ProductType) Valid() bool {
	return t == TypeComponent || t == TypeFinished
}

// Product is the single source of truth for stock. Price of a finished
// product is derived from its recipe; for a component it is the unit price.
type Product struct {
	ID        int64
	Name      string
	SKU       string
	Price     decimal.Decimal
	Stock     int64
	Category  string
	Type      ProductType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	Category string
	Type     ProductType
	Page     int
	Limit    int
	SortBy   string
	SortDir  string
}

// ErrNegativeStock triggered when a movement would drive stock below zero.
var ErrNegativeStock = errors.New("catalog: negative stock not allowed")
