// Package pipeline materializes a derived view of the canonical order.
//
// A Pipeline folds every entry through a caller-supplied Reducer and keeps
// the results in an output log aligned with the canonical order. It is
// maintained incrementally: as long as the writer-group ranking is stable,
// only newly appended entries are reduced and existing outputs are carried
// over byte for byte. When the ranking changes the pipeline reinitializes
// and replays the whole order from a fresh Init.
//
// The output log is stored in apply order, so the common case of the
// smallest group growing is a pure append. Every rewrite is a single
// "truncate at position d and append" transaction, and in-memory state is
// committed only after that transaction succeeds.
package pipeline
