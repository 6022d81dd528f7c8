package queue

import "errors"

var (
	// ErrValidation indicates enqueue parameters outside the allowed
	// ranges. Rejected before anything is persisted; never retried.
	ErrValidation = errors.New("invalid enqueue parameters")

	// ErrFileMissing indicates a task referenced a file record that does
	// not exist. Rejected before persistence.
	ErrFileMissing = errors.New("file record not found")

	// ErrStaleClaim indicates the caller no longer holds the claim it
	// thinks it holds. The in-flight work must be discarded; task state is
	// unchanged by the rejected call.
	ErrStaleClaim = errors.New("claim no longer held")

	// ErrStoreUnavailable indicates a transient store failure after busy
	// retries were exhausted. The whole operation is safe to retry since
	// every mutation is a conditional update.
	ErrStoreUnavailable = errors.New("queue store unavailable")

	// ErrUnsupportedSQLite indicates the SQLite runtime lacks the atomic
	// UPDATE ... RETURNING primitive the claim protocol requires. Fatal at
	// startup, never retryable.
	ErrUnsupportedSQLite = errors.New("unsupported sqlite version")

	// ErrSchemaMismatch indicates the database schema version doesn't match
	// the version this build expects.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
