package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a transcription task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
	StatusCancelled Status = "cancelled"
)

// TimeoutErrorInfo is the synthetic error recorded when the reaper reclaims
// a task whose worker stopped sending heartbeats.
const TimeoutErrorInfo = "heartbeat timeout"

// Priority and attempt bounds accepted by Enqueue.
const (
	MinPriority        = -1000
	MaxPriority        = 1000
	MaxAttemptsCeiling = 100
)

var allStatuses = []Status{
	StatusPending,
	StatusClaimed,
	StatusCompleted,
	StatusFailed,
	StatusDead,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusDead:      {},
	StatusCancelled: {},
}

// Task represents a transcription task persisted in SQLite.
type Task struct {
	ID           string
	FileID       string
	Status       Status
	Priority     int
	AttemptCount int
	MaxAttempts  int
	OptionsJSON  string
	ClaimedBy    string
	HeartbeatAt  *time.Time
	NotBefore    *time.Time
	Progress     float64
	Duration     float64
	ResultJSON   string
	ErrorMessage string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// FileRecord describes an uploaded file referenced by tasks.
type FileRecord struct {
	ID          string
	Filename    string
	Path        string
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

// EnqueueRequest carries the parameters accepted when creating a task.
// Zero MaxAttempts means "use the store's configured default".
type EnqueueRequest struct {
	FileID      string
	OptionsJSON string
	Priority    int
	MaxAttempts int
}

// Result carries the payload a worker reports on successful completion.
// SegmentsJSON is opaque to the queue; Duration is the audio duration in
// seconds and is stored alongside for operator queries.
type Result struct {
	SegmentsJSON string
	Duration     float64
}

// HealthSummary describes aggregated task counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Claimed   int
	Completed int
	Failed    int
	Dead      int
	Cancelled int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	SQLiteVersion    string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is final and inert.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsClaimed reports whether the task currently holds an active claim.
func (t Task) IsClaimed() bool {
	return t.Status == StatusClaimed
}

// AttemptsRemaining returns how many claim grants the task may still receive.
func (t Task) AttemptsRemaining() int {
	remaining := t.MaxAttempts - t.AttemptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
