package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/logging"
	"github.com/ia319/nola/internal/queue"
)

// Reaper periodically sweeps claimed tasks whose heartbeat has gone silent
// and pushes each one through the failure transition, requeueing or
// dead-lettering according to its remaining attempt budget.
type Reaper struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a reaper from the workflow timing configuration.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "reaper"),
		interval: time.Duration(cfg.Workflow.ReaperInterval) * time.Second,
		timeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reaper already running")
	}
	if r.interval <= 0 || r.timeout <= 0 {
		return errors.New("reaper intervals not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.run(runCtx)
	return nil
}

// Stop terminates the sweep loop and waits for it to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				r.logger.Warn("stale claim sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep performs one reclamation pass and returns how many tasks it acted
// on. Each candidate is re-validated against the exact heartbeat the sweep
// observed, so a worker that resumes heartbeating between the read and the
// write keeps its claim.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.timeout)
	stale, err := r.store.StaleClaims(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, task := range stale {
		ok, err := r.store.ReapExpired(ctx, task)
		if err != nil {
			r.logger.Error("failed to reap stale claim",
				logging.String(logging.FieldTaskID, task.ID),
				logging.String(logging.FieldWorkerID, task.ClaimedBy),
				logging.Error(err))
			continue
		}
		if !ok {
			continue
		}
		reaped++
		r.logger.Warn("reclaimed task with expired heartbeat",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldWorkerID, task.ClaimedBy),
			logging.Int(logging.FieldAttempt, task.AttemptCount))
	}
	return reaped, nil
}
