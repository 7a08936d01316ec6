// Package testutil holds deterministic helpers shared by package tests and
// the scenario harness: fixed writer ids, call counters for reducers and a
// throwaway SQLite store.
package testutil
