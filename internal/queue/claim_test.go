package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ia319/nola/internal/queue"
	"github.com/ia319/nola/internal/testsupport"
)

func TestClaimGrantsEachTaskOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "concurrent.mp3")

	const pendingTasks = 20
	const claimers = 32

	for i := 0; i < pendingTasks; i++ {
		if _, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		granted []string
	)
	var wg sync.WaitGroup
	errCh := make(chan error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			workerID := "worker-" + string(rune('a'+n%26))
			task, err := store.Claim(ctx, workerID)
			if err != nil {
				errCh <- err
				return
			}
			if task == nil {
				return
			}
			if task.Status != queue.StatusClaimed || task.ClaimedBy != workerID {
				errCh <- errors.New("claimed task missing claim fields")
				return
			}
			mu.Lock()
			granted = append(granted, task.ID)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("claim error: %v", err)
	}

	if len(granted) != pendingTasks {
		t.Fatalf("expected %d grants (min of claimers and tasks), got %d", pendingTasks, len(granted))
	}
	seen := make(map[string]struct{}, len(granted))
	for _, id := range granted {
		if _, dup := seen[id]; dup {
			t.Fatalf("task %s granted to two callers", id)
		}
		seen[id] = struct{}{}
	}

	remaining, err := store.CountTasks(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("CountTasks failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 pending tasks, got %d", remaining)
	}
}

func TestClaimOrdersByPriorityThenCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "ordering.mp3")

	priorities := []int{5, 1, 5, 3}
	ids := make([]string, len(priorities))
	for i, priority := range priorities {
		task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, Priority: priority})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids[i] = task.ID
		time.Sleep(2 * time.Millisecond) // distinct created_at for the FIFO tie-break
	}

	want := []string{ids[0], ids[2], ids[3], ids[1]}
	for i, expected := range want {
		task, err := store.Claim(ctx, "worker-order")
		if err != nil {
			t.Fatalf("Claim %d failed: %v", i, err)
		}
		if task == nil {
			t.Fatalf("Claim %d returned no task", i)
		}
		if task.ID != expected {
			t.Fatalf("claim %d: got task %s, want %s", i, task.ID, expected)
		}
	}

	empty, err := store.Claim(ctx, "worker-order")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected empty queue, got %s", empty.ID)
	}
}

func TestClaimIncrementsAttemptCount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "attempts.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := store.Claim(ctx, "worker-count")
		if err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if claimed == nil || claimed.ID != task.ID {
			t.Fatalf("expected task %s, got %#v", task.ID, claimed)
		}
		if claimed.AttemptCount != attempt {
			t.Fatalf("attempt %d: attempt_count = %d", attempt, claimed.AttemptCount)
		}
		if err := store.Fail(ctx, task.ID, "worker-count", "transient"); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
		requeued, err := store.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		// Fail never touches the counter; only the next claim does.
		if requeued.AttemptCount != attempt {
			t.Fatalf("attempt count changed on fail: %d", requeued.AttemptCount)
		}
		if requeued.Status != queue.StatusPending {
			t.Fatalf("expected requeue to pending, got %s", requeued.Status)
		}
	}
}

func TestHeartbeatOnlyForClaimHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "heartbeat.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Before any claim a heartbeat is a refused no-op.
	ok, err := store.Heartbeat(ctx, task.ID, "worker-a", 10)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if ok {
		t.Fatal("heartbeat on unclaimed task must report false")
	}

	if _, err := store.Claim(ctx, "worker-a"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	ok, err = store.Heartbeat(ctx, task.ID, "worker-b", 10)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if ok {
		t.Fatal("foreign worker heartbeat must report false")
	}

	var last time.Time
	for i := 0; i < 3; i++ {
		ok, err = store.Heartbeat(ctx, task.ID, "worker-a", float64(i*10))
		if err != nil {
			t.Fatalf("Heartbeat failed: %v", err)
		}
		if !ok {
			t.Fatal("claim holder heartbeat must succeed")
		}
		current, err := store.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if current.Status != queue.StatusClaimed || current.AttemptCount != 1 {
			t.Fatalf("heartbeat changed task state: %+v", current)
		}
		if current.HeartbeatAt == nil || current.HeartbeatAt.Before(last) {
			t.Fatal("heartbeat_at must advance monotonically")
		}
		last = *current.HeartbeatAt
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCompleteStoresResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "complete.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-c"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	result := queue.Result{SegmentsJSON: `[{"start":0,"end":1.5,"text":"hello"}]`, Duration: 1.5}
	if err := store.Complete(ctx, task.ID, "worker-c", result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	done, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if done.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.ResultJSON != result.SegmentsJSON || done.Duration != 1.5 {
		t.Fatalf("result not stored: %+v", done)
	}
	if done.ClaimedBy != "" || done.HeartbeatAt != nil {
		t.Fatal("claim fields must be cleared on completion")
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at must be set")
	}
}

func TestStaleCompleteAndFailAreNoOps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "stale.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-a"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	before, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}

	if err := store.Complete(ctx, task.ID, "worker-b", queue.Result{}); !errors.Is(err, queue.ErrStaleClaim) {
		t.Fatalf("expected ErrStaleClaim, got %v", err)
	}
	if err := store.Fail(ctx, task.ID, "worker-b", "nope"); !errors.Is(err, queue.ErrStaleClaim) {
		t.Fatalf("expected ErrStaleClaim, got %v", err)
	}
	if err := store.FailPermanent(ctx, task.ID, "worker-b", "nope"); !errors.Is(err, queue.ErrStaleClaim) {
		t.Fatalf("expected ErrStaleClaim, got %v", err)
	}

	after, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if after.Status != before.Status || after.ClaimedBy != before.ClaimedBy || after.AttemptCount != before.AttemptCount {
		t.Fatalf("stale call mutated task: before=%+v after=%+v", before, after)
	}

	// Same for a task not in claimed at all.
	if err := store.Complete(ctx, task.ID, "worker-a", queue.Result{Duration: 1}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := store.Fail(ctx, task.ID, "worker-a", "late"); !errors.Is(err, queue.ErrStaleClaim) {
		t.Fatalf("expected ErrStaleClaim on terminal task, got %v", err)
	}
	final, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("terminal status changed: %s", final.Status)
	}
}

func TestFailEscalatesToDeadAtAttemptLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "poison.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 2})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := store.Claim(ctx, "worker-p")
		if err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if claimed == nil {
			t.Fatalf("attempt %d: expected a task", attempt)
		}
		if err := store.Fail(ctx, task.ID, "worker-p", "always broken"); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
	}

	dead, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if dead.Status != queue.StatusDead {
		t.Fatalf("expected dead after exhausting attempts, got %s", dead.Status)
	}
	if dead.ErrorMessage != "always broken" {
		t.Fatalf("error info not recorded: %q", dead.ErrorMessage)
	}
	if dead.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", dead.AttemptCount)
	}

	// Dead is terminal: the task never re-enters the active pool.
	next, err := store.Claim(ctx, "worker-p")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if next != nil {
		t.Fatalf("dead task was claimable: %s", next.ID)
	}
}

func TestFailPermanentSkipsRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "permanent.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 10})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-f"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	if err := store.FailPermanent(ctx, task.ID, "worker-f", "input file deleted"); err != nil {
		t.Fatalf("FailPermanent failed: %v", err)
	}

	failed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if failed.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.ErrorMessage != "input file deleted" {
		t.Fatalf("error info not recorded: %q", failed.ErrorMessage)
	}
}

func TestCancelPendingAndClaimed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "cancel.mp3")

	pending, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	cancelled, err := store.Cancel(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected pending task to cancel")
	}

	claimedTask, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-x"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	cancelled, err = store.Cancel(ctx, claimedTask.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected claimed task to cancel")
	}

	// The worker holding the now-void claim finds out through Heartbeat.
	ok, err := store.Heartbeat(ctx, claimedTask.ID, "worker-x", 50)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if ok {
		t.Fatal("heartbeat after cancel must report the claim void")
	}

	// Terminal tasks cannot be cancelled again.
	cancelled, err = store.Cancel(ctx, claimedTask.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled {
		t.Fatal("cancel of a terminal task must be a no-op")
	}
}

func TestRetryDelayPostponesEligibility(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRetryDelay(3600))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "delay.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-d"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.Fail(ctx, task.ID, "worker-d", "try later"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	requeued, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if requeued.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", requeued.Status)
	}
	if requeued.NotBefore == nil || !requeued.NotBefore.After(time.Now()) {
		t.Fatalf("expected not_before in the future, got %v", requeued.NotBefore)
	}

	// Not yet eligible: claim must skip it.
	next, err := store.Claim(ctx, "worker-d")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if next != nil {
		t.Fatalf("delayed task claimed early: %s", next.ID)
	}
}

func TestEndToEndRetryThenTimeoutEscalation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "scenario.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID, MaxAttempts: 2})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Worker A claims and fails: one attempt consumed, task requeued.
	claimedA, err := store.Claim(ctx, "worker-a")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimedA.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", claimedA.AttemptCount)
	}
	if err := store.Fail(ctx, task.ID, "worker-a", "engine crashed"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	requeued, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if requeued.Status != queue.StatusPending || requeued.AttemptCount != 1 {
		t.Fatalf("unexpected state after fail: %+v", requeued)
	}

	// Worker B claims, then its heartbeats go silent and the sweep fires.
	claimedB, err := store.Claim(ctx, "worker-b")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimedB.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", claimedB.AttemptCount)
	}

	stale, err := store.StaleClaims(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleClaims failed: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale claim, got %d", len(stale))
	}
	reaped, err := store.ReapExpired(ctx, stale[0])
	if err != nil {
		t.Fatalf("ReapExpired failed: %v", err)
	}
	if !reaped {
		t.Fatal("expected the stale claim to be reaped")
	}

	dead, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if dead.Status != queue.StatusDead {
		t.Fatalf("expected dead, got %s", dead.Status)
	}
	if dead.ErrorMessage != queue.TimeoutErrorInfo {
		t.Fatalf("expected timeout error recorded, got %q", dead.ErrorMessage)
	}
}

func TestReapNeverClobbersFreshHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	fileID := testsupport.MustCreateFile(t, cfg, store, "race.mp3")
	task, err := store.Enqueue(ctx, queue.EnqueueRequest{FileID: fileID})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-live"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	// A sweep with a cutoff before the claim's heartbeat sees nothing.
	stale, err := store.StaleClaims(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("StaleClaims failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh claim reported stale: %d", len(stale))
	}

	// Snapshot the claim as a sweep would, then let the worker beat once
	// more before the sweep acts. The optimistic guard must miss.
	snapshot, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	ok, err := store.Heartbeat(ctx, task.ID, "worker-live", 42)
	if err != nil || !ok {
		t.Fatalf("Heartbeat failed: ok=%v err=%v", ok, err)
	}

	reaped, err := store.ReapExpired(ctx, snapshot)
	if err != nil {
		t.Fatalf("ReapExpired failed: %v", err)
	}
	if reaped {
		t.Fatal("reap acted on a claim that heartbeated after the read")
	}

	current, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if current.Status != queue.StatusClaimed || current.ClaimedBy != "worker-live" {
		t.Fatalf("live claim lost: %+v", current)
	}
}
