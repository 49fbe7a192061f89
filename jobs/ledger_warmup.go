package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/habitar-ventas/habitar/internal/jobs"
)

// Warmer loads the installment ledger into the cache.
type Warmer interface {
	Warm(ctx context.Context) (int, error)
}

// LedgerWarmupJob pre-populates the ledger so the first page view after a write is served from Redis.
type LedgerWarmupJob struct {
	Ledger  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewLedgerWarmupJob(ledger Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerWarmupJob {
	return &LedgerWarmupJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

func (j *LedgerWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger warmup: handler not configured")
	}
	return run(ctx, TaskLedgerWarmup, j.Logger, j.Metrics, 30*time.Second, func(ctx context.Context) (int64, error) {
		rows, err := j.Ledger.Warm(ctx)
		return int64(rows), err
	})
}
