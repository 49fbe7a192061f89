package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/habitar-ventas/habitar/jobs"
)

// Enqueuer submits a named task. *jobs.Client satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType, source string) (*asynq.TaskInfo, error)
}

// Inspector is the read side of *asynq.Inspector used by the stats command.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
}

// NewJobsCLI builds the CLI over an enqueuer and an inspector.
func NewJobsCLI(client Enqueuer, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// JobsOptions carries the output streams of a jobs command.
type JobsOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string   `json:"queue"`
	Pending   int      `json:"pending"`
	Active    int      `json:"active"`
	Scheduled int      `json:"scheduled"`
	Retry     int      `json:"retry"`
	Failed    int      `json:"failed_today"`
	Upcoming  []string `json:"upcoming"`
}

// Run dispatches `jobs trigger <task>` and `jobs stats [--json]`, returning the process exit code.
func (c *JobsCLI) Run(ctx context.Context, args []string, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(args) == 0 {
		c.usage(opts.Stderr)
		return 2
	}
	switch args[0] {
	case "trigger":
		return c.triggerCommand(ctx, args[1:], opts)
	case "stats":
		return c.statsCommand(args[1:], opts)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: unknown command %q\n", args[0])
		c.usage(opts.Stderr)
		return 2
	}
}

func (c *JobsCLI) usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: habitar jobs trigger <task> | habitar jobs stats [--json]")
	_, _ = fmt.Fprintf(w, "tasks: %s\n", strings.Join(jobs.TaskTypes, ", "))
}

func (c *JobsCLI) triggerCommand(ctx context.Context, args []string, opts JobsOptions) int {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs trigger: exactly one task name is required")
		return 2
	}
	info, err := c.Trigger(ctx, args[0])
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return 0
}

func (c *JobsCLI) statsCommand(args []string, opts JobsOptions) int {
	fs := flag.NewFlagSet("jobs stats", flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	asJSON := fs.Bool("json", false, "print stats as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	stats, err := c.InspectQueue()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
		return 1
	}
	if *asJSON {
		if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tFAILED")
	_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
	_ = tw.Flush()
	for _, u := range stats.Upcoming {
		_, _ = fmt.Fprintf(opts.Stdout, "  next: %s\n", u)
	}
	return 0
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.Enqueue(ctx, name, "cli")
}

// InspectQueue reports the queue metrics for the default queue, with the next scheduled runs.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault, Upcoming: []string{}}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	scheduled, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(5), asynq.Page(1))
	if err != nil {
		return QueueStats{}, err
	}
	for _, t := range scheduled {
		stats.Upcoming = append(stats.Upcoming, fmt.Sprintf("%s at %s", t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04")))
	}
	return stats, nil
}
