package recipe

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockforge/stockforge/internal/shared"
)

// Markup is the fixed multiplier applied to summed component cost when
// deriving a finished product's price.
var Markup = decimal.RequireFromString("1.3")

// Entry is one bill-of-materials line: making one unit of the finished
// product consumes QtyRequired units of the component.
type Entry struct {
	ID                int64
	FinishedProductID int64
	ComponentID       int64
	QtyRequired       int64
	CreatedAt         time.Time
}

// EntryDetail joins the entry with the component's current snapshot.
type EntryDetail struct {
	Entry
	ComponentName  string
	ComponentSKU   string
	ComponentPrice decimal.Decimal
	ComponentStock int64
}

// ErrDuplicateComponent indicates the (finished, component) pair already exists.
var ErrDuplicateComponent = fmt.Errorf("recipe: component already on recipe: %w", shared.ErrDuplicate)

// DerivePrice computes the finished price from the current recipe lines:
// markup times the summed component cost, rounded to cents. An empty recipe
// derives to 0.00.
func DerivePrice(entries []EntryDetail) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.ComponentPrice.Mul(decimal.NewFromInt(e.QtyRequired)))
	}
	return total.Mul(Markup).Round(2)
}
