package queue

import (
	"database/sql"
	"errors"
	"time"
)

const taskColumns = "id, file_id, status, priority, attempt_count, max_attempts, options_json, claimed_by, heartbeat_at, not_before, progress, duration, result_json, error_message, last_error, created_at, updated_at, completed_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           string
		fileID       string
		statusStr    string
		priority     int
		attemptCount int
		maxAttempts  int
		optionsJSON  sql.NullString
		claimedBy    sql.NullString
		heartbeatRaw sql.NullString
		notBeforeRaw sql.NullString
		progress     sql.NullFloat64
		duration     sql.NullFloat64
		resultJSON   sql.NullString
		errorMessage sql.NullString
		lastError    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&statusStr,
		&priority,
		&attemptCount,
		&maxAttempts,
		&optionsJSON,
		&claimedBy,
		&heartbeatRaw,
		&notBeforeRaw,
		&progress,
		&duration,
		&resultJSON,
		&errorMessage,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		FileID:       fileID,
		Status:       Status(statusStr),
		Priority:     priority,
		AttemptCount: attemptCount,
		MaxAttempts:  maxAttempts,
		OptionsJSON:  optionsJSON.String,
		ClaimedBy:    claimedBy.String,
		Progress:     progress.Float64,
		Duration:     duration.Float64,
		ResultJSON:   resultJSON.String,
		ErrorMessage: errorMessage.String,
		LastError:    lastError.String,
	}

	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			task.HeartbeatAt = &heartbeat
		}
	}
	if notBeforeRaw.Valid {
		if notBefore, err := parseTimeString(notBeforeRaw.String); err == nil {
			task.NotBefore = &notBefore
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			task.CompletedAt = &completed
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// storedTimeFormat pads fractional seconds to nine digits so stored TEXT
// timestamps compare chronologically under SQLite's lexicographic ordering.
// RFC3339Nano trims trailing zeros, which would sort a whole second after a
// fractional one within the same second.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(storedTimeFormat)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
