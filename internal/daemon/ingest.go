package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/queue"
)

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".webm": "audio/webm",
}

// StageFile copies a local audio file into the upload directory and records
// its metadata. Both the daemon and the CLI ingest through this path.
func StageFile(ctx context.Context, cfg *config.Config, store *queue.Store, sourcePath string) (*queue.FileRecord, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	contentType, ok := audioContentTypes[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	destPath := filepath.Join(cfg.Paths.UploadDir, uuid.NewString()[:8]+"-"+info.Name())
	if err := copyFile(absPath, destPath); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	record, err := store.NewFile(ctx, info.Name(), destPath, info.Size(), contentType)
	if err != nil {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("record file: %w", err)
	}
	return record, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}
