package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockforge/stockforge/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan walks the catalog and reports products at or below
	// the configured threshold.
	TaskLowStockScan = "lowstock:scan"
)

// LowStockPayload carries the scan parameters.
type LowStockPayload struct {
	Threshold    int64     `json:"threshold"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(threshold int64, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockPayload{Threshold: threshold, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// LowStockScanner reports products running low on stock.
type LowStockScanner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLowStockScanner constructs LowStockScanner.
func NewLowStockScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *LowStockScanner {
	return &LowStockScanner{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskLowStockScan tasks.
func (s *LowStockScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Threshold < 0 {
		return asynq.SkipRetry
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, sku, stock FROM products WHERE stock <= $1 ORDER BY stock ASC, id`, payload.Threshold)
	if err != nil {
		s.metrics.ObserveJob(TaskLowStockScan, "error")
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, stock int64
		var name, sku string
		if err := rows.Scan(&id, &name, &sku, &stock); err != nil {
			s.metrics.ObserveJob(TaskLowStockScan, "error")
			return err
		}
		s.logger.Warn("low stock",
			slog.Int64("product_id", id),
			slog.String("sku", sku),
			slog.String("name", name),
			slog.Int64("stock", stock),
			slog.Int64("threshold", payload.Threshold),
		)
		count++
	}
	if err := rows.Err(); err != nil {
		s.metrics.ObserveJob(TaskLowStockScan, "error")
		return err
	}

	s.metrics.ObserveJob(TaskLowStockScan, "success")
	s.logger.Info("low stock scan finished", slog.Int("flagged", count), slog.Int64("threshold", payload.Threshold))
	return nil
}
