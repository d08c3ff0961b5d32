// Package stores persists apply history for guildform. The SQLite store
// records apply runs with their per-operation results, deduplicated
// snapshots of observed guild state and an append-only audit trail. It
// implements engine.RunRecorder so the writer can record runs as they
// execute.
package stores
