// Package worker runs the claim-process-report loop that turns pending
// tasks into transcripts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/engine"
	"github.com/ia319/nola/internal/logging"
	"github.com/ia319/nola/internal/queue"
	"github.com/ia319/nola/internal/services"
)

// Worker claims tasks one at a time and drives each through the engine.
// Its identifier is unique per process start, so a restarted daemon never
// accidentally matches the claims of its previous life.
type Worker struct {
	id     string
	store  *queue.Store
	engine engine.Transcriber
	logger *slog.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
}

// NewID derives a worker identifier from the host name and a random suffix.
func NewID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "nola"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// New constructs a worker with a fresh identifier.
func New(cfg *config.Config, store *queue.Store, transcriber engine.Transcriber, logger *slog.Logger) *Worker {
	id := NewID()
	return &Worker{
		id:                id,
		store:             store,
		engine:            transcriber,
		logger:            logging.NewComponentLogger(logger, "worker").With(logging.String(logging.FieldWorkerID, id)),
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
	}
}

// ID returns the worker's claim identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run claims and processes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.store.Claim(ctx, w.id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to claim next task", logging.Error(err))
			w.waitOrShutdown(ctx)
			continue
		}
		if task == nil {
			w.waitOrShutdown(ctx)
			continue
		}

		w.processTask(ctx, task)
	}
}

// ProcessOne claims at most one task, processes it, and reports whether a
// task was found. Used by tests and the drain path.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.store.Claim(ctx, w.id)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	w.processTask(ctx, task)
	return true, nil
}

func (w *Worker) processTask(ctx context.Context, task *queue.Task) {
	taskCtx, cancel := context.WithCancel(services.WithTaskID(services.WithWorkerID(ctx, w.id), task.ID))
	defer cancel()

	logger := w.logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int(logging.FieldAttempt, task.AttemptCount))
	logger.Info("claimed task", logging.String("file_id", task.FileID))

	var progress progressValue
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go w.heartbeatLoop(taskCtx, cancel, &hbWG, task.ID, &progress, logger)

	result, err := w.transcribe(taskCtx, task, &progress)

	cancel()
	hbWG.Wait()

	if err != nil {
		w.reportFailure(ctx, task, err, logger)
		return
	}
	if err := w.store.Complete(ctx, task.ID, w.id, *result); err != nil {
		if errors.Is(err, queue.ErrStaleClaim) {
			logger.Warn("claim lost before completion could be recorded")
			return
		}
		logger.Error("failed to record completion", logging.Error(err))
		return
	}
	logger.Info("task completed",
		logging.Float64("duration_seconds", result.Duration))
}

func (w *Worker) transcribe(ctx context.Context, task *queue.Task, progress *progressValue) (*queue.Result, error) {
	opts, err := engine.ParseOptions(task.OptionsJSON)
	if err != nil {
		return nil, err
	}

	inputPath, err := w.store.FilePath(ctx, task.FileID)
	if err != nil {
		return nil, err
	}
	if inputPath == "" {
		return nil, services.Wrap(services.ErrNotFound, "worker", "transcribe",
			fmt.Sprintf("file record %s missing", task.FileID), nil)
	}

	engineResult, err := w.engine.Transcribe(ctx, inputPath, opts, progress.set)
	if err != nil {
		return nil, err
	}

	segments, err := json.Marshal(engineResult.Segments)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "worker", "transcribe", "encode segments", err)
	}
	return &queue.Result{SegmentsJSON: string(segments), Duration: engineResult.Duration}, nil
}

// heartbeatLoop renews the claim until the task context ends. When the
// store reports the claim void (reaped, cancelled, or stolen) the loop
// cancels the task context so the engine stops burning cycles.
func (w *Worker) heartbeatLoop(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, taskID string, progress *progressValue, logger *slog.Logger) {
	defer wg.Done()
	if w.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.store.Heartbeat(ctx, taskID, w.id, progress.get())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
				continue
			}
			if !ok {
				logger.Warn("claim is void, abandoning task")
				cancel()
				return
			}
		}
	}
}

func (w *Worker) reportFailure(ctx context.Context, task *queue.Task, taskErr error, logger *slog.Logger) {
	message := taskErr.Error()

	var err error
	if services.Retryable(taskErr) {
		err = w.store.Fail(ctx, task.ID, w.id, message)
	} else {
		err = w.store.FailPermanent(ctx, task.ID, w.id, message)
	}
	if err != nil {
		if errors.Is(err, queue.ErrStaleClaim) {
			logger.Warn("claim lost before failure could be recorded", logging.Error(taskErr))
			return
		}
		logger.Error("failed to record task failure", logging.Error(err))
		return
	}
	logger.Warn("task failed",
		logging.Bool("retryable", services.Retryable(taskErr)),
		logging.Error(taskErr))
}

func (w *Worker) waitOrShutdown(ctx context.Context) {
	interval := w.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

// progressValue shares the latest engine progress between the transcribe
// call and the heartbeat goroutine.
type progressValue struct {
	bits atomic.Uint64
}

func (p *progressValue) set(percent float64) {
	p.bits.Store(math.Float64bits(percent))
}

func (p *progressValue) get() float64 {
	return math.Float64frombits(p.bits.Load())
}
