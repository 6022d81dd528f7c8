package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/ia319/nola/internal/logging"
	"github.com/ia319/nola/internal/queue"
	"github.com/ia319/nola/internal/reaper"
	"github.com/ia319/nola/internal/testsupport"
)

func TestSweepIgnoresFreshClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "fresh.mp3")
	if _, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-fresh"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	r := reaper.New(cfg, store, logging.NewNop())
	reaped, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if reaped != 0 {
		t.Fatalf("sweep reaped %d fresh claims", reaped)
	}
}

func TestSweepRequeuesSilentClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.HeartbeatTimeout = -1
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "silent.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-gone"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	// A negative timeout pushes the cutoff into the future, so the claim
	// counts as stale immediately.
	r := reaper.New(cfg, store, logging.NewNop())
	reaped, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("sweep reaped %d claims, want 1", reaped)
	}

	requeued, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if requeued.Status != queue.StatusPending {
		t.Fatalf("expected requeue to pending, got %s", requeued.Status)
	}
	if requeued.LastError != queue.TimeoutErrorInfo {
		t.Fatalf("last error = %q, want timeout info", requeued.LastError)
	}
	if requeued.ClaimedBy != "" || requeued.HeartbeatAt != nil {
		t.Fatal("claim fields must be cleared on requeue")
	}
}

func TestSweepDeadLettersExhaustedClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.HeartbeatTimeout = -1
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "exhausted.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 1})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-gone"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	r := reaper.New(cfg, store, logging.NewNop())
	if _, err := r.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	dead, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if dead.Status != queue.StatusDead {
		t.Fatalf("expected dead, got %s", dead.Status)
	}
	if dead.ErrorMessage != queue.TimeoutErrorInfo {
		t.Fatalf("error info = %q, want timeout info", dead.ErrorMessage)
	}
}

func TestStartAndStopLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	r := reaper.New(cfg, store, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatal("second Start must fail while running")
	}
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	// Stop again is a no-op.
	r.Stop()
}
