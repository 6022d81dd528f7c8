package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ia319/nola/internal/config"
)

// WriteAudioFixture creates a small placeholder audio file inside the test
// upload directory and returns its path.
func WriteAudioFixture(t testing.TB, cfg *config.Config, filename string) string {
	t.Helper()

	path := filepath.Join(cfg.Paths.UploadDir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := make([]byte, 1024)
	for i := range content {
		content[i] = 0x42
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
