package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPaid OrderStatus = "paid"
)

// PaymentMethod is how the customer settled the order.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether the payment method is one we accept.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

// Order is a completed sale. Totals and item prices are snapshotted at
// checkout time; later catalog price changes do not rewrite history.
type Order struct {
	ID            int64           `json:"id"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderItem is one line of an order. SKU and price are copied from the
// product row inside the checkout transaction.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Qty       int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CartLine is a requested quantity of a product.
type CartLine struct {
	ProductID int64
	Qty       int64
}

// CheckoutInput carries everything Checkout needs.
type CheckoutInput struct {
	Lines          []CartLine
	PaymentMethod  PaymentMethod
	ActorID        int64
	IdempotencyKey string
}

// ListFilters narrows ListOrders.
type ListFilters struct {
	PaymentMethod PaymentMethod
	From          time.Time
	To            time.Time
	Page          int
	Limit         int
}
