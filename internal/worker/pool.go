package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/engine"
	"github.com/ia319/nola/internal/queue"
)

// Pool runs a configured number of workers against the same store.
type Pool struct {
	workers []*Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool builds cfg.Workflow.WorkerCount workers sharing one engine client.
func NewPool(cfg *config.Config, store *queue.Store, transcriber engine.Transcriber, logger *slog.Logger) *Pool {
	count := cfg.Workflow.WorkerCount
	if count < 1 {
		count = 1
	}
	workers := make([]*Worker, 0, count)
	for i := 0; i < count; i++ {
		workers = append(workers, New(cfg, store, transcriber, logger))
	}
	return &Pool{workers: workers}
}

// Start launches every worker loop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("worker pool already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(runCtx)
		}(w)
	}
	return nil
}

// Stop cancels all workers and waits for in-flight tasks to settle.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}
