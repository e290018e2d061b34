// Package repositories implements SQLite persistence for download runs.
//
// Key Implementations:
//   - [QueueStore] : Work item snapshots keyed by a stable track hash, written by a single goroutine
//   - [RunStore] : One summary row per orchestrator or conversion run
//
// A queue database file belongs to one process at a time. [OpenQueueStore] takes an advisory lock next to
// the file and fails with [shared.ErrLocked] when another run holds it.
package repositories
