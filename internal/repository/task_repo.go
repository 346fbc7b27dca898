package repository

import (
	"context"
	"time"

	"task_reminders/internal/config"
	"task_reminders/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

// ListDueForReminder returns incomplete tasks whose due date has passed and
// that have not yet been notified under the given policy, most overdue first.
//
//   - PolicyOnce:       updated_at IS NULL OR updated_at < due_date
//   - PolicyEveryCycle: updated_at IS NULL OR updated_at < now - interval
func (r *TaskRepository) ListDueForReminder(ctx context.Context, now time.Time, policy config.NotifyPolicy, interval time.Duration) ([]*domain.Task, error) {
	q := `SELECT id, owner_id, title, due_date, updated_at
	        FROM tasks
	       WHERE is_complete = false AND due_date <= $1
	         AND (updated_at IS NULL OR updated_at < due_date)
	       ORDER BY due_date ASC`
	args := []any{now}

	if policy == config.PolicyEveryCycle {
		q = `SELECT id, owner_id, title, due_date, updated_at
		       FROM tasks
		      WHERE is_complete = false AND due_date <= $1
		        AND (updated_at IS NULL OR updated_at < $2)
		      ORDER BY due_date ASC`
		args = append(args, now.Add(-interval))
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.DueDate, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &t)
	}
	return res, rows.Err()
}

// MarkNotified advances the task's updated_at, closing the current overdue
// episode. A blind write: re-marking is harmless and a deleted task is a no-op.
func (r *TaskRepository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE tasks SET updated_at = $1 WHERE id = $2`, at.UTC(), id)
	return err
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO tasks (owner_id, title, description, priority, due_date, is_complete)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		t.OwnerID, t.Title, t.Description, t.Priority, t.DueDate.UTC(), t.IsComplete,
	).Scan(&t.ID, &t.CreatedAt)
}

func (r *TaskRepository) SetCompleted(ctx context.Context, id int64, completed bool) error {
	_, err := r.db.Exec(ctx, `UPDATE tasks SET is_complete = $1, updated_at = now() WHERE id = $2`, completed, id)
	return err
}
