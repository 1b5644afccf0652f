// Package sweeper runs the queue's periodic maintenance: expiring stale
// pending tasks and failing tasks whose agent never reported back.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// Queue is the maintenance surface of the task queue.
type Queue interface {
	StaleAfter() time.Duration
	ExpireStale(ctx context.Context, threshold time.Duration) (int64, error)
	ReapProcessing(ctx context.Context, timeout time.Duration) (int64, error)
}

type ExpireStaleArgs struct{}

func (ExpireStaleArgs) Kind() string { return "expire_stale_tasks" }

type ReapProcessingArgs struct {
	Timeout time.Duration `json:"timeout"`
}

func (ReapProcessingArgs) Kind() string { return "reap_processing_tasks" }

type ExpireStaleWorker struct {
	river.WorkerDefaults[ExpireStaleArgs]
	queue  Queue
	logger *slog.Logger
}

func NewExpireStaleWorker(q Queue, logger *slog.Logger) *ExpireStaleWorker {
	return &ExpireStaleWorker{queue: q, logger: logger}
}

func (w *ExpireStaleWorker) Work(ctx context.Context, _ *river.Job[ExpireStaleArgs]) error {
	n, err := w.queue.ExpireStale(ctx, w.queue.StaleAfter())
	if err != nil {
		return fmt.Errorf("expire stale tasks: %w", err)
	}
	if n > 0 {
		w.logger.Info("expired stale tasks", "count", n)
	}
	return nil
}

type ReapProcessingWorker struct {
	river.WorkerDefaults[ReapProcessingArgs]
	queue Queue
}

func NewReapProcessingWorker(q Queue) *ReapProcessingWorker {
	return &ReapProcessingWorker{queue: q}
}

func (w *ReapProcessingWorker) Work(ctx context.Context, job *river.Job[ReapProcessingArgs]) error {
	if _, err := w.queue.ReapProcessing(ctx, job.Args.Timeout); err != nil {
		return fmt.Errorf("reap processing tasks: %w", err)
	}
	return nil
}

// Register adds both workers to workers.
func Register(workers *river.Workers, q Queue, logger *slog.Logger) {
	river.AddWorker(workers, NewExpireStaleWorker(q, logger))
	river.AddWorker(workers, NewReapProcessingWorker(q))
}

// PeriodicJobs schedules both sweeps every interval, starting at boot.
func PeriodicJobs(interval, processingTimeout time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ExpireStaleArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ReapProcessingArgs{Timeout: processingTimeout}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Loop runs the same sweeps on a ticker for deployments without river
// (the in-memory store). It returns when ctx is cancelled.
func Loop(ctx context.Context, q Queue, interval, processingTimeout time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		Sweep(ctx, q, processingTimeout, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one expiry pass and one reap pass, logging failures.
func Sweep(ctx context.Context, q Queue, processingTimeout time.Duration, logger *slog.Logger) {
	if _, err := q.ExpireStale(ctx, q.StaleAfter()); err != nil {
		logger.Error("expire stale tasks", "error", err)
	}
	if _, err := q.ReapProcessing(ctx, processingTimeout); err != nil {
		logger.Error("reap processing tasks", "error", err)
	}
}
