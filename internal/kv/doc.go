// Package kv is a multi-writer key/value map with causal conflict markers.
//
// Put appends a put operation to the local writer's log. Update feeds every
// newly linearized batch through Apply, which writes the value tagged with
// its provenance (source writer, seq). When the write shadows a previous
// value the batch clock did not know about, the shadowed record is kept
// under sentinel + "/" + key as a conflict marker; a write that causally
// supersedes the previous value clears the marker instead.
//
// Only put is merged. A key keeps at most one conflict marker: the most
// recent shadowed write.
package kv
