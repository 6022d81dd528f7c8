package queue

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases with a different version refuse to open.
const schemaVersion = 1

// minSQLiteVersion is the oldest runtime whose UPDATE ... RETURNING support
// makes the single-statement claim possible.
var minSQLiteVersion = [3]int{3, 35, 0}

func (s *Store) checkSQLiteVersion(ctx context.Context) (string, error) {
	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return "", fmt.Errorf("read sqlite version: %w", err)
	}
	return version, ensureSQLiteVersion(version)
}

func ensureSQLiteVersion(version string) error {
	numbers := parseSQLiteVersion(version)
	for i := range minSQLiteVersion {
		if numbers[i] > minSQLiteVersion[i] {
			return nil
		}
		if numbers[i] < minSQLiteVersion[i] {
			return fmt.Errorf(
				"%w: runtime is %s, need >= %d.%d.%d for atomic claim (UPDATE ... RETURNING)",
				ErrUnsupportedSQLite, version,
				minSQLiteVersion[0], minSQLiteVersion[1], minSQLiteVersion[2],
			)
		}
	}
	return nil
}

// parseSQLiteVersion reads up to three dotted numeric components; anything
// unparseable truncates the rest, and missing components count as zero.
func parseSQLiteVersion(version string) [3]int {
	var numbers [3]int
	for i, part := range strings.SplitN(version, ".", 4) {
		if i >= len(numbers) {
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		numbers[i] = n
	}
	return numbers
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'nola queue clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
