// Package engine implements the bitstream linearization engine.
//
// Each writer appends to its own log. The engine merges all logs into one
// canonical order without coordination: writer groups sorted ascending by
// log length (ties broken by writer id), each group listed newest entry
// first. Any replica holding the same logs computes the same order.
//
// ARCHITECTURE:
//
// Appends:
// Append validates the producer's clock against the log head and writes a
// batch of entries in one storage transaction. A clock that does not match
// the head is rejected as stale, which prevents lost updates between two
// local producers of one log.
//
// Snapshots:
// Snapshot captures the log lengths once. The canonical order, the apply
// order (its reverse) and the writer-group ranking all derive from those
// lengths, so concurrent appends are never half-observed.
//
// Batch delivery:
// Update reconciles a View against the apply order. Batches are the units of
// Append, delivered oldest first within each writer group. When the view's
// applied prefix no longer matches, delivery restarts from position 0 with
// Reset set on the first batch.
//
// Notification loop:
// Run invokes a callback after each burst of appends from a single
// goroutine, so views are kept current without polling.
//
// CRITICAL PATTERNS:
//
// Logical ordering only: lengths and writer ids decide the order. Wall-clock
// time never participates.
//
// Single batch in flight: Update holds a lock for its duration, so a view
// sees batches strictly one after another.
package engine
