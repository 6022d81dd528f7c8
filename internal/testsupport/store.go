package testsupport

import (
	"context"
	"testing"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}

// MustCreateFile inserts a file record backed by a real file on disk and
// returns its identifier.
func MustCreateFile(t testing.TB, cfg *config.Config, store *queue.Store, filename string) string {
	t.Helper()

	path := WriteAudioFixture(t, cfg, filename)
	record, err := store.NewFile(context.Background(), filename, path, 1024, "audio/mpeg")
	if err != nil {
		t.Fatalf("create file record: %v", err)
	}
	return record.ID
}
