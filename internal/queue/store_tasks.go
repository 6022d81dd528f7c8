package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enqueue validates the request, inserts a new pending task, and returns it.
// The referenced file must exist; a dangling reference is rejected before
// persistence (and again by the foreign key, should the file vanish between
// the check and the insert).
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Task, error) {
	if strings.TrimSpace(req.FileID) == "" {
		return nil, fmt.Errorf("%w: file id must not be empty", ErrValidation)
	}
	if req.Priority < MinPriority || req.Priority > MaxPriority {
		return nil, fmt.Errorf("%w: priority %d outside [%d, %d]", ErrValidation, req.Priority, MinPriority, MaxPriority)
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.defaultMaxAttempts
	}
	if maxAttempts < 1 || maxAttempts > MaxAttemptsCeiling {
		return nil, fmt.Errorf("%w: max attempts %d outside [1, %d]", ErrValidation, maxAttempts, MaxAttemptsCeiling)
	}

	exists, err := s.FileExists(ctx, req.FileID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFileMissing, req.FileID)
	}

	id := uuid.NewString()
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO transcription_tasks (
            id, file_id, status, priority, attempt_count, max_attempts,
            options_json, progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?, 0, ?, ?)`,
		id,
		req.FileID,
		StatusPending,
		req.Priority,
		maxAttempts,
		nullableString(req.OptionsJSON),
		now,
		now,
	); err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, req.FileID)
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.GetTask(ctx, id)
}

// GetTask fetches a task by identifier. Returns nil when not found.
func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM transcription_tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks newest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status Status, limit, offset int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+taskColumns+` FROM transcription_tasks ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			limit, offset,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+taskColumns+` FROM transcription_tasks WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			status, limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CountTasks counts tasks, optionally filtered by status.
func (s *Store) CountTasks(ctx context.Context, status Status) (int, error) {
	var (
		count int
		err   error
	)
	if status == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcription_tasks`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcription_tasks WHERE status = ?`, status).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// TasksByStatus returns all tasks in a status ordered by creation time.
func (s *Store) TasksByStatus(ctx context.Context, status Status) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM transcription_tasks WHERE status = ? ORDER BY created_at`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
