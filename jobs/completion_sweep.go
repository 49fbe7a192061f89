package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/habitar-ventas/habitar/internal/jobs"
)

// Completer closes negotiations whose sources are fully received.
type Completer interface {
	CompleteFullyPaid(ctx context.Context) (int64, error)
}

// Invalidator drops cached ledger views.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// CompletionSweepJob marks fully paid active negotiations as completed.
type CompletionSweepJob struct {
	Negotiations Completer
	Cache        Invalidator
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

func NewCompletionSweepJob(negotiations Completer, cache Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CompletionSweepJob {
	return &CompletionSweepJob{Negotiations: negotiations, Cache: cache, Logger: logger, Metrics: metrics}
}

func (j *CompletionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Negotiations == nil {
		return errors.New("completion sweep: handler not configured")
	}
	logger := j.Logger
	if logger != nil {
		logger = logger.With(slog.String("source", taskSource(t)))
	}
	return run(ctx, TaskCompletionSweep, logger, j.Metrics, 5*time.Minute, func(ctx context.Context) (int64, error) {
		done, err := j.Negotiations.CompleteFullyPaid(ctx)
		if err != nil {
			return done, err
		}
		if done > 0 && j.Cache != nil {
			if err := j.Cache.Bump(ctx); err != nil {
				return done, err
			}
		}
		return done, nil
	})
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload(), dest)
}
