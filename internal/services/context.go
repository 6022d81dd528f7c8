package services

import "context"

type contextKey string

const (
	taskIDKey   contextKey = "task_id"
	workerIDKey contextKey = "worker_id"
)

// WithTaskID returns a context tagged with a task identifier.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskIDFromContext extracts the task identifier, if any.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(taskIDKey).(string)
	return id, ok && id != ""
}

// WithWorkerID returns a context tagged with a worker identifier.
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	if workerID == "" {
		return ctx
	}
	return context.WithValue(ctx, workerIDKey, workerID)
}

// WorkerIDFromContext extracts the worker identifier, if any.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(workerIDKey).(string)
	return id, ok && id != ""
}
