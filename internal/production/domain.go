package production

import (
	"fmt"
	"time"

	"github.com/stockforge/stockforge/internal/shared"
)

// BatchStatus enumerates the batch lifecycle. A batch is planned
// in_progress, and either completes (stock transferred) or is cancelled.
type BatchStatus string

const (
	// StatusInProgress marks a planned batch whose stock transfer has not run.
	StatusInProgress BatchStatus = "in_progress"
	// StatusCompleted marks a batch whose component consumption and
	// finished-product credit have been committed.
	StatusCompleted BatchStatus = "completed"
	// StatusCancelled marks a planned batch abandoned without stock effect.
	StatusCancelled BatchStatus = "cancelled"
)

// Batch is one execution of the production workflow.
type Batch struct {
	ID                int64
	FinishedProductID int64
	Qty               int64
	Status            BatchStatus
	Notes             string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// BatchComponent records consumption of one component by one batch.
// Rows are append-only, never mutated or deleted.
type BatchComponent struct {
	ID          int64
	BatchID     int64
	ComponentID int64
	QtyUsed     int64
}

// ProduceInput describes a production request.
type ProduceInput struct {
	FinishedProductID int64
	Qty               int64
	Notes             string
	ActorID           int64
	IdempotencyKey    string
}

// ListFilters narrows batch listings.
type ListFilters struct {
	FinishedProductID int64
	Status            BatchStatus
	Page              int
	Limit             int
}

// ErrEmptyRecipe rejects production of a finished product with no recipe:
// a batch that consumes nothing would mint stock out of thin air.
var ErrEmptyRecipe = fmt.Errorf("production: finished product has no recipe: %w", shared.ErrValidation)
