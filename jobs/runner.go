package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/habitar-ventas/habitar/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// run wraps a job body with a per-run timeout, metrics and start/finish logs.
// fn reports how many records it changed.
func run(ctx context.Context, task string, logger *slog.Logger, metrics *jobmetrics.Metrics, timeout time.Duration, fn func(context.Context) (int64, error)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger = logger.With(slog.String("job", task))
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tracker := metrics.Track(task)
	start := time.Now()
	affected, err := fn(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "job failed", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddAffected(task, affected)
	logger.InfoContext(ctx, "job completed", slog.Int64("affected", affected), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

// taskSource reads who triggered the task. Malformed payloads are treated as scheduled runs.
func taskSource(t *asynq.Task) string {
	var p TriggerPayload
	if err := decodePayload(t, &p); err != nil || p.Source == "" {
		return "scheduler"
	}
	return p.Source
}
