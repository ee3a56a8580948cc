package catalog

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ProductForm is the JSON payload accepted by create/update.
type ProductForm struct {
	Name     string `json:"name" validate:"required"`
	SKU      string `json:"sku" validate:"required"`
	Price    string `json:"price" validate:"required"`
	Stock    int64  `json:"stock" validate:"gte=0"`
	Category string `json:"category"`
	Type     string `json:"product_type" validate:"required,oneof=component finished"`
}

// ProductResponse is the boundary representation: ids as strings, money with
// two decimal places, timestamps in RFC3339.
type ProductResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     string `json:"price"`
	Stock     int64  `json:"stock"`
	Category  string `json:"category"`
	Type      string `json:"product_type"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toResponse(p Product) ProductResponse {
	return ProductResponse{
		ID:        strconv.FormatInt(p.ID, 10),
		Name:      p.Name,
		SKU:       p.SKU,
		Price:     p.Price.StringFixed(2),
		Stock:     p.Stock,
		Category:  p.Category,
		Type:      string(p.Type),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func toResponses(products []Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toResponse(p))
	}
	return out
}

func (f ProductForm) toProduct() (Product, error) {
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return Product{}, err
	}
	return Product{
		Name:     f.Name,
		SKU:      f.SKU,
		Price:    price,
		Stock:    f.Stock,
		Category: f.Category,
		Type:     ProductType(f.Type),
	}, nil
}
