package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskCompletionSweep    = "negotiations:completion_sweep"
	TaskLedgerWarmup       = "installments:ledger_warmup"
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// TaskTypes lists every task the worker handles, in the order the CLI shows them.
var TaskTypes = []string{TaskCompletionSweep, TaskLedgerWarmup, TaskIdempotencyCleanup}

// TriggerPayload records who enqueued a run.
type TriggerPayload struct {
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewTask builds a task of a known type with the default retry policy.
func NewTask(taskType, source string) (*asynq.Task, error) {
	known := false
	for _, t := range TaskTypes {
		if t == taskType {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("jobs: unknown task type %q", taskType)
	}
	body, err := json.Marshal(TriggerPayload{Source: source, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// DefaultSchedule is the cron plan of the worker, evaluated in UTC.
func DefaultSchedule() ([]CronRegistration, error) {
	specs := []struct {
		spec string
		task string
	}{
		{"0 2 * * *", TaskCompletionSweep},
		{"*/30 * * * *", TaskLedgerWarmup},
		{"0 3 * * *", TaskIdempotencyCleanup},
	}
	out := make([]CronRegistration, 0, len(specs))
	for _, s := range specs {
		task, err := NewTask(s.task, "scheduler")
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: s.spec, Task: task})
	}
	return out, nil
}
