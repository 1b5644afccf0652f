// Package agent is the polling worker: it claims tasks from the queue one
// at a time, answers them from installed context or the marketplace, and
// submits the result.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/telemetry"
	"github.com/hive402/backend/pkg/hiveclient"
	"github.com/hive402/backend/pkg/retry"
)

// Queue is the agent side of the task API.
type Queue interface {
	Claim(ctx context.Context, agentID string) (*models.Task, error)
	Complete(ctx context.Context, taskID uuid.UUID, outcome string, out models.TaskOutput) error
}

type Loop struct {
	queue    Queue
	executor *Executor
	agentID  string
	backoff  Backoff
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	submit   retry.Config
}

type Option func(*Loop)

func WithBackoff(b Backoff) Option { return func(l *Loop) { l.backoff = b } }
func WithLogger(lg *slog.Logger) Option { return func(l *Loop) { l.logger = lg } }

// WithSubmitRetry sets how result submission is retried after transport or
// 5xx failures. 4xx answers are never retried.
func WithSubmitRetry(cfg retry.Config) Option { return func(l *Loop) { l.submit = cfg } }

// WithSleep replaces the wait between polls.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) { l.sleep = fn }
}

func NewLoop(queue Queue, executor *Executor, agentID string, opts ...Option) *Loop {
	l := &Loop{
		queue:    queue,
		executor: executor,
		agentID:  agentID,
		backoff:  DefaultBackoff(),
		logger:   slog.Default(),
		sleep:    sleepCtx,
		submit:   retry.Config{MaxAttempts: 4, BaseDelay: time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls until ctx is cancelled. The next poll is scheduled only after
// the current task has been submitted.
func (l *Loop) Run(ctx context.Context) error {
	state := InitialState(l.backoff)
	l.logger.Info("agent loop started", "agent_id", l.agentID, "interval", state.Interval)
	for {
		if err := l.sleep(ctx, state.Interval); err != nil {
			l.logger.Info("agent loop stopped", "agent_id", l.agentID)
			return nil
		}
		state = l.Step(ctx, state)
	}
}

// Step runs one poll and, when a task is claimed, executes and submits it.
func (l *Loop) Step(ctx context.Context, state State) State {
	task, err := l.queue.Claim(ctx, l.agentID)
	outcome := classify(task, err)
	telemetry.AgentPolls.WithLabelValues(string(outcome)).Inc()

	next := Next(state, outcome, l.backoff)
	telemetry.AgentPollInterval.Set(next.Interval.Seconds())
	if next.Interval != state.Interval {
		l.logger.Warn("poll interval changed", "outcome", outcome, "interval", next.Interval)
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case outcome == PollRejected:
			l.logger.Error("poll rejected by server, check agent credentials", "error", err)
		default:
			l.logger.Warn("poll failed", "outcome", outcome, "error", err)
		}
		return next
	}
	if task == nil {
		return next
	}

	l.process(ctx, task)
	return next
}

func (l *Loop) process(ctx context.Context, task *models.Task) {
	l.logger.Info("task claimed", "task_id", task.ID)
	start := time.Now()
	out, outcome := l.executor.Execute(ctx, task)
	telemetry.AgentTaskDuration.WithLabelValues(out.Type).Observe(time.Since(start).Seconds())

	cfg := l.submit
	cfg.OnRetry = func(attempt int, err error) {
		l.logger.Warn("submit result retry", "task_id", task.ID, "attempt", attempt, "error", err)
	}
	err := retry.Do(ctx, cfg, func() error {
		err := l.queue.Complete(ctx, task.ID, outcome, out)
		var se *hiveclient.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		l.logger.Error("submit result failed", "task_id", task.ID, "error", err)
		return
	}
	l.logger.Info("task submitted", "task_id", task.ID, "output_type", out.Type, "outcome", outcome)
}

func classify(task *models.Task, err error) PollOutcome {
	if err == nil {
		if task == nil {
			return PollEmpty
		}
		return PollClaimed
	}
	var se *hiveclient.StatusError
	if errors.As(err, &se) {
		if se.Retryable() {
			return PollServerError
		}
		return PollRejected
	}
	return PollNetwork
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
