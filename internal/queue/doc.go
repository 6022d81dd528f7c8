// Package queue persists transcription tasks in SQLite and owns their
// lifecycle: enqueue, atomic claim, heartbeat, completion, failure with
// bounded retries, and reaper-driven reclaim of abandoned claims.
//
// The Store manages the database connection, schema initialization, and
// every status transition. Claims are granted by a single conditional
// UPDATE ... RETURNING statement, which is why Open refuses to start on a
// SQLite runtime older than 3.35. Workers never write status directly;
// they go through Claim, Heartbeat, Complete, and Fail, each of which is
// guarded by the current status and claim holder so stale callers cannot
// corrupt state.
//
// Treat this package as the single source of truth for queue semantics;
// when you add statuses or fields, update schema.sql and bump schemaVersion.
package queue
