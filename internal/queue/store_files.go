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

const fileColumns = "id, filename, path, size, content_type, created_at"

// NewFile records uploaded file metadata and returns the stored record.
func (s *Store) NewFile(ctx context.Context, filename, path string, size int64, contentType string) (*FileRecord, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: filename must not be empty", ErrValidation)
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: path must not be empty", ErrValidation)
	}

	id := uuid.NewString()
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO files (id, filename, path, size, content_type, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		filename,
		path,
		size,
		nullableString(contentType),
		now,
	); err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return s.GetFile(ctx, id)
}

// GetFile fetches file metadata by identifier. Returns nil when not found.
func (s *Store) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)
	record, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return record, nil
}

// FileExists reports whether a file record exists.
func (s *Store) FileExists(ctx context.Context, fileID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE id = ?`, fileID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check file: %w", err)
	}
	return count > 0, nil
}

// FilePath returns the storage path for a file, or empty when not found.
func (s *Store) FilePath(ctx context.Context, fileID string) (string, error) {
	record, err := s.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.Path, nil
}

// ListFiles returns file records ordered by creation time, newest first.
func (s *Store) ListFiles(ctx context.Context, limit, offset int) ([]*FileRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteFile removes file metadata (not the file on disk). Deletion fails
// while tasks still reference the record.
func (s *Store) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (*FileRecord, error) {
	var (
		id          string
		filename    string
		path        string
		size        int64
		contentType sql.NullString
		createdRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &filename, &path, &size, &contentType, &createdRaw); err != nil {
		return nil, err
	}
	record := &FileRecord{
		ID:          id,
		Filename:    filename,
		Path:        path,
		Size:        size,
		ContentType: contentType.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
