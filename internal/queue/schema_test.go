package queue

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ia319/nola/internal/config"
)

func schemaTestConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

func TestOpenRejectsSchemaVersionMismatch(t *testing.T) {
	cfg := schemaTestConfig(t)

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = ?", schemaVersion+7); err != nil {
		t.Fatalf("rewrite schema version: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw db: %v", err)
	}

	if _, err := Open(cfg); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenAcceptsExistingCurrentSchema(t *testing.T) {
	cfg := schemaTestConfig(t)

	first, err := Open(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first store: %v", err)
	}

	second, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
}

func TestEnsureSQLiteVersion(t *testing.T) {
	cases := []struct {
		version   string
		supported bool
	}{
		{"3.35.0", true},
		{"3.35.1", true},
		{"3.50.4", true},
		{"4.0.0", true},
		{"3.40", true},
		{"3.34.1", false},
		{"3.9.2", false},
		{"2.999.999", false},
		{"3", false},
		{"garbage", false},
	}

	for _, tc := range cases {
		err := ensureSQLiteVersion(tc.version)
		if tc.supported {
			if err != nil {
				t.Errorf("version %q: unexpected error: %v", tc.version, err)
			}
			continue
		}
		if !errors.Is(err, ErrUnsupportedSQLite) {
			t.Errorf("version %q: expected ErrUnsupportedSQLite, got %v", tc.version, err)
		}
	}
}

func TestParseSQLiteVersion(t *testing.T) {
	if got := parseSQLiteVersion("3.35.5"); got != [3]int{3, 35, 5} {
		t.Fatalf("parse full version: got %v", got)
	}
	if got := parseSQLiteVersion("3.40"); got != [3]int{3, 40, 0} {
		t.Fatalf("missing patch should default to zero: got %v", got)
	}
	if got := parseSQLiteVersion("3.x.5"); got != [3]int{3, 0, 0} {
		t.Fatalf("unparseable component should truncate the rest: got %v", got)
	}
	if got := parseSQLiteVersion("3.35.0.1"); got != [3]int{3, 35, 0} {
		t.Fatalf("extra components should be ignored: got %v", got)
	}
}
