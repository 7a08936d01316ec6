// Package harness runs YAML scenarios against a fresh in-memory store and
// records a deterministic trace of every step.
//
// # Scenario Format
//
//	name: rank_swap
//	description: "B overtakes A and forces a reinit"
//	writers: [A, B]
//	reducer: count
//	steps:
//	  - append: { writer: A, count: 2 }
//	  - rebase: {}
//	    expect:
//	      order: [B0, A1, A0]
//	      inits: 1
//	  - put: { writer: A, key: k, value: v, isolated: true }
//	  - update: {}
//	    expect:
//	      values: { k: v }
//	      conflicts: {}
//
// Step kinds:
//   - append: append payloads (or count generated "A0"-style payloads) to a writer
//   - rebase: run the reducer pipeline for an output log
//   - put: append a put operation through the key/value map
//   - update: apply new batches to a key/value view
//
// Every step may carry an expect clause. Fields left out are not checked;
// conflicts and values compare the full set when present. An expected error
// code (e.g. STALE_CLOCK) turns a failing step into a passing one.
//
// # Deterministic Testing
//
// Each scenario runs against its own :memory: SQLite database with fixed
// writer ids, so the same file always produces a byte-identical trace. The
// trace is serialized as canonical JSON for golden comparison.
package harness
