// Package jobs is the single-slot task queue polled by worker agents.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hive402/backend/internal/events"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
	"github.com/hive402/backend/internal/telemetry"
)

const (
	DefaultStaleAfter        = 60 * time.Second
	DefaultProcessingTimeout = 5 * time.Minute
)

var (
	ErrEmptyInput     = errors.New("input is required")
	ErrTaskNotFound   = errors.New("task not found")
	ErrNotProcessing  = errors.New("task is not processing")
	ErrNotClaimant    = errors.New("task is claimed by another agent")
	ErrInvalidOutcome = errors.New("outcome must be completed or failed")
)

// Store is the task persistence the queue relies on. Every method that
// changes status must be a single atomic conditional update.
type Store interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ClaimOldestPending(ctx context.Context, agentID string, freshSince, now time.Time) (*models.Task, error)
	ExpirePending(ctx context.Context, olderThan, now time.Time) (int64, error)
	FinishProcessing(ctx context.Context, id uuid.UUID, claimant, status, output string, now time.Time) (*models.Task, error)
	ReapProcessing(ctx context.Context, claimedBefore, now time.Time, output string) (int64, error)
}

type Service struct {
	store      Store
	events     events.Publisher
	logger     *slog.Logger
	now        func() time.Time
	staleAfter time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		events:     events.Nop{},
		logger:     slog.Default(),
		now:        time.Now,
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StaleAfter is the age past which a pending task is presumed abandoned.
func (s *Service) StaleAfter() time.Duration { return s.staleAfter }

func (s *Service) Enqueue(ctx context.Context, input string) (*models.Task, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	now := s.now()
	t := &models.Task{
		ID:        uuid.New(),
		Input:     input,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	telemetry.QueueTasksEnqueued.Inc()
	s.publish(ctx, events.Event{Kind: events.TaskEnqueued, TaskID: t.ID.String(), At: now})
	return t, nil
}

// ClaimNext expires stale pending tasks, then atomically moves the oldest
// fresh pending task to processing for agentID. A nil task with a nil error
// means there is no work, including when a concurrent claimer won the race.
func (s *Service) ClaimNext(ctx context.Context, agentID string) (*models.Task, error) {
	ctx, span := telemetry.Tracer("jobs").Start(ctx, "jobs.ClaimNext")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	if _, err := s.ExpireStale(ctx, s.staleAfter); err != nil {
		return nil, err
	}
	now := s.now()
	t, err := s.store.ClaimOldestPending(ctx, agentID, now.Add(-s.staleAfter), now)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if t == nil {
		telemetry.QueueClaims.WithLabelValues("empty").Inc()
		return nil, nil
	}
	span.SetAttributes(attribute.String("task.id", t.ID.String()))
	telemetry.QueueClaims.WithLabelValues("claimed").Inc()
	telemetry.QueueTransitions.WithLabelValues(models.TaskStatusProcessing).Inc()
	s.publish(ctx, events.Event{Kind: events.TaskClaimed, TaskID: t.ID.String(), AgentID: agentID, At: now})
	return t, nil
}

// ExpireStale moves every pending task older than threshold to expired.
func (s *Service) ExpireStale(ctx context.Context, threshold time.Duration) (int64, error) {
	now := s.now()
	n, err := s.store.ExpirePending(ctx, now.Add(-threshold), now)
	if err != nil {
		return 0, fmt.Errorf("expire stale tasks: %w", err)
	}
	if n > 0 {
		telemetry.QueueTransitions.WithLabelValues(models.TaskStatusExpired).Add(float64(n))
		s.logger.Info("expired stale tasks", "count", n, "threshold", threshold)
		s.publish(ctx, events.Event{Kind: events.TasksExpired, Count: n, At: now})
	}
	return n, nil
}

// Complete finalizes a processing task. An empty agentID skips the claimant
// check. A task that is not processing is left untouched.
func (s *Service) Complete(ctx context.Context, taskID uuid.UUID, agentID, outcome, output string) (*models.Task, error) {
	if outcome != models.TaskStatusCompleted && outcome != models.TaskStatusFailed {
		return nil, ErrInvalidOutcome
	}
	now := s.now()
	t, err := s.store.FinishProcessing(ctx, taskID, agentID, outcome, output, now)
	if err != nil {
		return nil, fmt.Errorf("finish task: %w", err)
	}
	if t == nil {
		reason := s.completeRejection(ctx, taskID)
		telemetry.QueueCompleteRejected.WithLabelValues(reasonLabel(reason)).Inc()
		return nil, reason
	}
	telemetry.QueueTransitions.WithLabelValues(outcome).Inc()
	kind := events.TaskCompleted
	if outcome == models.TaskStatusFailed {
		kind = events.TaskFailed
	}
	s.publish(ctx, events.Event{Kind: kind, TaskID: taskID.String(), AgentID: agentID, At: now})
	return t, nil
}

// completeRejection explains why a finish swap did not apply.
func (s *Service) completeRejection(ctx context.Context, taskID uuid.UUID) error {
	t, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if t.Status != models.TaskStatusProcessing {
		return ErrNotProcessing
	}
	return ErrNotClaimant
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, ErrNotProcessing):
		return "not_processing"
	case errors.Is(err, ErrNotClaimant):
		return "not_claimant"
	}
	return "error"
}

func (s *Service) GetStatus(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

// ReapProcessing fails tasks whose claim is older than timeout, so a crashed
// agent cannot leave work in processing forever. Reaped tasks never return
// to pending.
func (s *Service) ReapProcessing(ctx context.Context, timeout time.Duration) (int64, error) {
	now := s.now()
	out := models.ErrorOutput(fmt.Sprintf("agent did not submit a result within %s", timeout)).Encode()
	n, err := s.store.ReapProcessing(ctx, now.Add(-timeout), now, out)
	if err != nil {
		return 0, fmt.Errorf("reap processing tasks: %w", err)
	}
	if n > 0 {
		telemetry.QueueTransitions.WithLabelValues(models.TaskStatusFailed).Add(float64(n))
		s.logger.Warn("reaped abandoned tasks", "count", n, "timeout", timeout)
		s.publish(ctx, events.Event{Kind: events.TasksReaped, Count: n, At: now})
	}
	return n, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish lifecycle event", "kind", e.Kind, "error", err)
	}
}
