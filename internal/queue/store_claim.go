package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Claim atomically grants the next eligible task to workerID and returns it,
// or nil when no task is eligible. Eligible means pending and past any
// not_before delay; the highest priority wins, FIFO by created_at among
// equals. The selection, status flip, worker assignment, and attempt-count
// increment happen in one UPDATE ... RETURNING statement, so under
// concurrent callers each task is granted at most once.
func (s *Store) Claim(ctx context.Context, workerID string) (*Task, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker id must not be empty", ErrValidation)
	}

	ctx = ensureContext(ctx)
	now := formatTime(time.Now())

	var (
		task    *Task
		scanErr error
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE transcription_tasks
             SET status = ?, claimed_by = ?, heartbeat_at = ?,
                 attempt_count = attempt_count + 1, updated_at = ?
             WHERE id IN (
                 SELECT id FROM transcription_tasks
                 WHERE status = ? AND (not_before IS NULL OR not_before <= ?)
                 ORDER BY priority DESC, created_at ASC
                 LIMIT 1
             )
             RETURNING `+taskColumns,
			StatusClaimed,
			workerID,
			now,
			now,
			StatusPending,
			now,
		)
		task, scanErr = scanTask(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			task = nil
			return nil
		}
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// Heartbeat renews the claim's freshness and records advisory progress. It
// returns false when the task is no longer claimed by workerID; the caller
// must treat that as "claim is void, stop working" rather than retry.
func (s *Store) Heartbeat(ctx context.Context, taskID, workerID string, progress float64) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE transcription_tasks
         SET heartbeat_at = ?, progress = ?, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		now,
		progress,
		now,
		taskID,
		StatusClaimed,
		workerID,
	)
	if err != nil {
		return false, fmt.Errorf("update heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Complete transitions a task claimed by workerID to completed and stores
// the result. A caller that lost its claim gets ErrStaleClaim and the task
// is left untouched.
func (s *Store) Complete(ctx context.Context, taskID, workerID string, result Result) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE transcription_tasks
         SET status = ?, result_json = ?, duration = ?, progress = 100,
             claimed_by = NULL, heartbeat_at = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		StatusCompleted,
		nullableString(result.SegmentsJSON),
		result.Duration,
		now,
		now,
		taskID,
		StatusClaimed,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s is not claimed by %s", ErrStaleClaim, taskID, workerID)
	}
	return nil
}

// Fail reports a processing failure for a task claimed by workerID and
// applies the retry policy: requeue to pending while attempts remain,
// otherwise dead with errorInfo recorded. The reaper drives its timeout
// reclaim through the same transition, so the poison-pill bound holds no
// matter where the failure originated.
func (s *Store) Fail(ctx context.Context, taskID, workerID, errorInfo string) error {
	return s.failClaimed(ctx, taskID, workerID, nil, errorInfo)
}

// FailPermanent marks a claimed task failed without consuming the remaining
// attempts. Used for deterministic failures (missing input, rejected
// options) where another attempt can only burn retries.
func (s *Store) FailPermanent(ctx context.Context, taskID, workerID, errorInfo string) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE transcription_tasks
         SET status = ?, error_message = ?, last_error = ?,
             claimed_by = NULL, heartbeat_at = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		StatusFailed,
		errorInfo,
		errorInfo,
		now,
		now,
		taskID,
		StatusClaimed,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s is not claimed by %s", ErrStaleClaim, taskID, workerID)
	}
	return nil
}

// Cancel moves a pending or claimed task to cancelled. A worker holding the
// claim discovers the cancellation when Heartbeat returns false. Returns
// false when the task does not exist or is already terminal.
func (s *Store) Cancel(ctx context.Context, taskID string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE transcription_tasks
         SET status = ?, claimed_by = NULL, heartbeat_at = NULL,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled,
		now,
		now,
		taskID,
		StatusPending,
		StatusClaimed,
	)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// StaleClaims returns claimed tasks whose heartbeat predates cutoff. The
// reaper feeds each result back through ReapExpired, which re-validates the
// claim before acting on it.
func (s *Store) StaleClaims(ctx context.Context, cutoff time.Time) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM transcription_tasks
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?
         ORDER BY heartbeat_at`,
		StatusClaimed,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale claims: %w", err)
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

// ReapExpired applies the fail transition to a task whose claim went stale,
// guarded on the claimed_by AND heartbeat_at values the sweep observed. A
// worker that heartbeats between the read and this call keeps its claim;
// the guard misses and ReapExpired reports false without touching the row.
func (s *Store) ReapExpired(ctx context.Context, task *Task) (bool, error) {
	if task == nil || task.HeartbeatAt == nil {
		return false, nil
	}
	err := s.failClaimed(ctx, task.ID, task.ClaimedBy, task.HeartbeatAt, TimeoutErrorInfo)
	if errors.Is(err, ErrStaleClaim) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// failClaimed is the single retry-policy-guarded failure transition shared
// by Fail and the reaper. heartbeatGuard, when non-nil, additionally pins
// the update to the exact heartbeat the caller observed.
func (s *Store) failClaimed(ctx context.Context, taskID, workerID string, heartbeatGuard *time.Time, errorInfo string) error {
	now := time.Now().UTC()
	timestamp := formatTime(now)

	guardClause := ""
	guardArg := func(args []any) []any { return args }
	if heartbeatGuard != nil {
		guardClause = " AND heartbeat_at = ?"
		guard := formatTime(*heartbeatGuard)
		guardArg = func(args []any) []any { return append(args, guard) }
	}

	var notBefore any
	if s.retryDelay > 0 {
		notBefore = formatTime(now.Add(s.retryDelay))
	}

	// Requeue while attempts remain. Priority and created_at are left
	// untouched so FIFO ordering among equals is unaffected.
	args := []any{StatusPending, errorInfo, notBefore, timestamp, taskID, StatusClaimed, workerID}
	args = guardArg(args)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE transcription_tasks
         SET status = ?, claimed_by = NULL, heartbeat_at = NULL,
             last_error = ?, not_before = ?, progress = 0, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`+guardClause+`
           AND attempt_count < max_attempts`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Attempts exhausted: dead-letter with the error recorded.
	args = []any{StatusDead, errorInfo, errorInfo, timestamp, timestamp, taskID, StatusClaimed, workerID}
	args = guardArg(args)
	res, err = s.execWithRetry(
		ctx,
		`UPDATE transcription_tasks
         SET status = ?, claimed_by = NULL, heartbeat_at = NULL,
             error_message = ?, last_error = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`+guardClause+`
           AND attempt_count >= max_attempts`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("dead-letter task: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	return fmt.Errorf("%w: task %s is not claimed by %s", ErrStaleClaim, taskID, workerID)
}
