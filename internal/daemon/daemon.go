// Package daemon coordinates the worker pool and reaper behind a
// single-instance lock and exposes the management surface the CLI uses.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/engine"
	"github.com/ia319/nola/internal/logging"
	"github.com/ia319/nola/internal/queue"
	"github.com/ia319/nola/internal/reaper"
	"github.com/ia319/nola/internal/worker"
)

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	pool   *worker.Pool
	reaper *reaper.Reaper

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	transcriber, err := engine.New(cfg.Transcription)
	if err != nil {
		return nil, fmt.Errorf("create engine client: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "nolad.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		pool:     worker.NewPool(cfg, store, transcriber, logger),
		reaper:   reaper.New(cfg, store, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workers and the reaper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another nola daemon instance is already running")
	}

	if err := d.reaper.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start reaper: %w", err)
	}
	if err := d.pool.Start(ctx); err != nil {
		d.reaper.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workers: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("nola daemon started",
		logging.Int("workers", d.pool.Size()),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.pool.Stop()
	d.reaper.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("nola daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// AddFile copies an audio file into the upload directory and records its
// metadata. The returned record's ID is what Enqueue expects.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (*queue.FileRecord, error) {
	record, err := StageFile(ctx, d.cfg, d.store, sourcePath)
	if err != nil {
		return nil, err
	}
	d.logger.Info("file staged for transcription",
		logging.String("file_id", record.ID),
		logging.String("source", sourcePath))
	return record, nil
}

// Enqueue validates the options document up front and creates a pending
// task, so a typo fails at submission instead of burning attempts later.
func (d *Daemon) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Task, error) {
	if _, err := engine.ParseOptions(req.OptionsJSON); err != nil {
		return nil, err
	}
	return d.store.Enqueue(ctx, req)
}

// ListTasks returns tasks, optionally filtered to a single status.
func (d *Daemon) ListTasks(ctx context.Context, status queue.Status, limit, offset int) ([]*queue.Task, error) {
	return d.store.ListTasks(ctx, status, limit, offset)
}

// GetTask fetches one task by identifier.
func (d *Daemon) GetTask(ctx context.Context, taskID string) (*queue.Task, error) {
	return d.store.GetTask(ctx, taskID)
}

// Cancel stops a pending or in-flight task.
func (d *Daemon) Cancel(ctx context.Context, taskID string) (bool, error) {
	return d.store.Cancel(ctx, taskID)
}

// RetryDead resets dead tasks (optionally a subset) back to pending with a
// fresh attempt budget.
func (d *Daemon) RetryDead(ctx context.Context, ids []string) (int64, error) {
	return d.store.RetryDead(ctx, ids...)
}

// ClearCompleted removes completed tasks.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearDead removes dead tasks.
func (d *Daemon) ClearDead(ctx context.Context) (int64, error) {
	return d.store.ClearDead(ctx)
}

// QueueHealth returns aggregate task counts.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}
