package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status enums. Transitions only move forward:
// pending -> processing -> completed|failed, or pending -> expired.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusExpired    = "expired"
	TaskStatusFailed     = "failed"
)

type Task struct {
	ID        uuid.UUID  `json:"id"`
	Input     string     `json:"input"`
	Status    string     `json:"status"`
	Output    *string    `json:"output"`
	ClaimedBy string     `json:"claimedBy,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether no further transition is allowed.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusExpired, TaskStatusFailed:
		return true
	}
	return false
}

// TaskStatusView is the requester-facing projection returned by status polling.
type TaskStatusView struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	Output    *string   `json:"output"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Task) StatusView() TaskStatusView {
	return TaskStatusView{ID: t.ID, Status: t.Status, Output: t.Output, UpdatedAt: t.UpdatedAt}
}
