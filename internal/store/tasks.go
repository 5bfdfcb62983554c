package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/outreachops/intakesync/internal/types"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertTask(ctx context.Context, conn execer, task *types.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (id, intake_id, title, type, due_date, completed, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := conn.ExecContext(ctx, query,
		task.ID,
		task.IntakeID,
		task.Title,
		string(task.Type),
		task.DueDate.Format(time.RFC3339),
		boolToInt(task.Completed),
		task.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}

	return nil
}

// InsertTasks inserts a batch of tasks, typically a freshly computed plan
// for a newly created record.
func (db *DB) InsertTasks(ctx context.Context, tasks []*types.Task) error {
	for _, task := range tasks {
		if err := insertTask(ctx, db.conn, task); err != nil {
			return err
		}
	}
	return nil
}

// ListTasksForRecord returns all tasks tied to one intake record,
// ordered by due date.
func (db *DB) ListTasksForRecord(ctx context.Context, intakeID string) ([]*types.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, intake_id, title, type, due_date, completed, created_at
		FROM tasks WHERE intake_id = ? ORDER BY due_date ASC`, intakeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks for record %s: %w", intakeID, err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListOpenTasks returns incomplete tasks due on or before the cutoff,
// soonest first. Zero cutoff means no due-date filter.
func (db *DB) ListOpenTasks(ctx context.Context, dueBy time.Time, limit int) ([]*types.Task, error) {
	query := `
		SELECT id, intake_id, title, type, due_date, completed, created_at
		FROM tasks WHERE completed = 0`
	var args []interface{}

	if !dueBy.IsZero() {
		query += " AND due_date <= ?"
		args = append(args, dueBy.Format(time.RFC3339))
	}
	query += " ORDER BY due_date ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// CompleteTask marks a task as done.
// Returns sql.ErrNoRows if the task doesn't exist.
func (db *DB) CompleteTask(ctx context.Context, taskID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET completed = 1 WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetTaskCount returns the total number of tasks.
func (db *DB) GetTaskCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get task count: %w", err)
	}
	return count, nil
}

func scanTasks(rows *sql.Rows) ([]*types.Task, error) {
	var tasks []*types.Task

	for rows.Next() {
		var task types.Task
		var typ string
		var dueDate, createdAt string
		var completed int

		err := rows.Scan(
			&task.ID,
			&task.IntakeID,
			&task.Title,
			&typ,
			&dueDate,
			&completed,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		task.Type = types.TaskType(typ)
		task.Completed = completed != 0
		if t, err := time.Parse(time.RFC3339, dueDate); err == nil {
			task.DueDate = t
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			task.CreatedAt = t
		}

		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
