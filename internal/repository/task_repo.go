package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive402/backend/internal/models"
)

const taskColumns = `id, input, status, output, claimed_by, claimed_at, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	if err := row.Scan(&t.ID, &t.Input, &t.Status, &t.Output, &t.ClaimedBy, &t.ClaimedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) CreateTask(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, input, status, output, claimed_by, claimed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
	`, t.ID, t.Input, t.Status, t.Output, t.ClaimedBy, t.ClaimedAt, t.CreatedAt).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// ClaimOldestPending moves the oldest pending task created at or after
// freshSince to processing in one statement. SKIP LOCKED lets concurrent
// claimers pass over a row another transaction is swapping; the outer status
// predicate keeps the update a compare-and-swap. Returns nil when nothing was
// claimed.
func (r *TaskRepo) ClaimOldestPending(ctx context.Context, agentID string, freshSince, now time.Time) (*models.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = 'processing', claimed_by = $1, claimed_at = $3, updated_at = $3
		WHERE status = 'pending' AND id = (
			SELECT id FROM tasks
			WHERE status = 'pending' AND created_at >= $2
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns, agentID, freshSince, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TaskRepo) ExpirePending(ctx context.Context, olderThan, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'expired', updated_at = $2
		WHERE status = 'pending' AND created_at < $1
	`, olderThan, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FinishProcessing swaps processing to status. An empty claimant skips the
// ownership predicate. Returns nil when the swap did not happen.
func (r *TaskRepo) FinishProcessing(ctx context.Context, id uuid.UUID, claimant, status, output string, now time.Time) (*models.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $2, output = $3, updated_at = $5
		WHERE id = $1 AND status = 'processing' AND ($4 = '' OR claimed_by = $4)
		RETURNING `+taskColumns, id, status, output, claimant, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TaskRepo) ReapProcessing(ctx context.Context, claimedBefore, now time.Time, output string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'failed', output = $3, updated_at = $2
		WHERE status = 'processing' AND claimed_at < $1
	`, claimedBefore, now, output)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListRecent returns the newest tasks, optionally filtered by status.
func (r *TaskRepo) ListRecent(ctx context.Context, status string, limit int) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
