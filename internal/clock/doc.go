// Package clock implements causal clocks for multi-writer logs.
//
// A Clock maps a writer id to the highest sequence number from that writer
// that is causally known to the clock's owner. Clocks are immutable values:
// every operation that "changes" a clock returns a copy, so a clock captured
// from a writer log never aliases the log's mutable tail.
//
// Containment is the only question the merge layer asks of a clock:
//
//	c.Contains(w, seq)  <=>  c.Get(w) >= seq
//
// Lookup answers the same question but distinguishes a writer the clock has
// never heard of (Unknown) from a writer it knows only up to an older seq
// (Behind), so callers can treat missing causal information explicitly.
package clock
