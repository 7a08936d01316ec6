package clock

// Knowledge is the result of looking up a single entry in a clock.
type Knowledge int

const (
	// Unknown means the clock has never observed the writer at all.
	Unknown Knowledge = iota
	// Behind means the writer is known, but only up to an older seq.
	Behind
	// Known means the entry is causally contained in the clock.
	Known
)

// String returns the knowledge level as a string.
func (k Knowledge) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Behind:
		return "behind"
	case Known:
		return "known"
	default:
		return "invalid"
	}
}

// Relation is the causal relationship between two clocks.
type Relation int

const (
	// Before indicates this clock happened before the other.
	Before Relation = iota
	// After indicates this clock happened after the other.
	After
	// Concurrent indicates neither clock dominates.
	Concurrent
	// Equal indicates identical knowledge.
	Equal
)

// String returns the relation as a string.
func (r Relation) String() string {
	switch r {
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	case Equal:
		return "equal"
	default:
		return "invalid"
	}
}
