// Package store provides SQLite-backed durable storage for bitstream.
//
// It implements the three collaborators the linearization core depends on:
//   - Writer logs: one append-only, densely numbered log per writer
//   - Output logs: materialized reducer outputs, rewritten from a position
//   - Index: an ordered key/value table per view plus its applied-entry list
//
// # Critical Patterns
//
// Logical ordering only: every query orders by seq/pos or by key bytes,
// never by timestamps, so reads are identical across replays.
//
// Atomic rewrites: appends, output rewrites and index batches each run in a
// single transaction. A failed call leaves the previous contents untouched.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Entry ids are computed by model.EntryID using RFC 8785 canonical JSON and
// SHA-256 with domain separation.
package store
