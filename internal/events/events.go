// Package events publishes task and ingest lifecycle events.
package events

import (
	"context"
	"time"
)

// Event kinds.
const (
	TaskEnqueued  = "task.enqueued"
	TaskClaimed   = "task.claimed"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
	TasksExpired  = "task.expired"
	TasksReaped   = "task.reaped"
	SkillReleased = "ingest.released"
)

type Event struct {
	Kind     string    `json:"kind"`
	TaskID   string    `json:"taskId,omitempty"`
	AgentID  string    `json:"agentId,omitempty"`
	SkillID  string    `json:"skillId,omitempty"`
	Identity string    `json:"identity,omitempty"`
	Count    int64     `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Key is the partition key: the task or skill the event concerns.
func (e Event) Key() string {
	if e.TaskID != "" {
		return e.TaskID
	}
	return e.SkillID
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
