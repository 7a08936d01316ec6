package clock

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Clock is an immutable snapshot of causal knowledge.
// The zero value is the empty clock.
type Clock struct {
	seqs map[string]int64
}

// New creates a clock from a writer -> seq map. The map is copied.
// Negative seqs are dropped; a writer with no known entries is simply absent.
func New(seqs map[string]int64) Clock {
	if len(seqs) == 0 {
		return Clock{}
	}
	m := make(map[string]int64, len(seqs))
	for w, s := range seqs {
		if s < 0 {
			continue
		}
		m[w] = s
	}
	return Clock{seqs: m}
}

// Has reports whether the clock knows any entry from writer.
func (c Clock) Has(writer string) bool {
	_, ok := c.seqs[writer]
	return ok
}

// Get returns the highest known seq for writer.
func (c Clock) Get(writer string) (int64, bool) {
	s, ok := c.seqs[writer]
	return s, ok
}

// Contains reports whether entry (writer, seq) is causally known.
func (c Clock) Contains(writer string, seq int64) bool {
	return c.Lookup(writer, seq) == Known
}

// Lookup classifies the clock's knowledge of entry (writer, seq).
func (c Clock) Lookup(writer string, seq int64) Knowledge {
	s, ok := c.seqs[writer]
	switch {
	case !ok:
		return Unknown
	case s >= seq:
		return Known
	default:
		return Behind
	}
}

// With returns a copy of the clock that knows writer up to at least seq.
func (c Clock) With(writer string, seq int64) Clock {
	if s, ok := c.seqs[writer]; (ok && s >= seq) || seq < 0 {
		return c
	}
	m := c.copyMap(1)
	m[writer] = seq
	return Clock{seqs: m}
}

// Merge returns the pointwise maximum of both clocks.
func (c Clock) Merge(other Clock) Clock {
	if len(other.seqs) == 0 {
		return c
	}
	m := c.copyMap(len(other.seqs))
	for w, s := range other.seqs {
		if cur, ok := m[w]; !ok || s > cur {
			m[w] = s
		}
	}
	return Clock{seqs: m}
}

// Len returns the number of writers the clock knows.
func (c Clock) Len() int {
	return len(c.seqs)
}

// Writers returns the known writers in ascending order.
func (c Clock) Writers() []string {
	writers := make([]string, 0, len(c.seqs))
	for w := range c.seqs {
		writers = append(writers, w)
	}
	sort.Strings(writers)
	return writers
}

// Map returns a copy of the underlying writer -> seq map.
func (c Clock) Map() map[string]int64 {
	return c.copyMap(0)
}

// Equal reports whether both clocks hold identical knowledge.
func (c Clock) Equal(other Clock) bool {
	return c.Compare(other) == Equal
}

// Compare returns the causal relationship of c relative to other.
// A writer absent from one clock counts as "nothing known" (below seq 0).
func (c Clock) Compare(other Clock) Relation {
	var less, greater bool
	for w, s := range c.seqs {
		o, ok := other.seqs[w]
		if !ok || s > o {
			greater = true
		} else if s < o {
			less = true
		}
	}
	for w := range other.seqs {
		if _, ok := c.seqs[w]; !ok {
			less = true
		}
	}

	switch {
	case !less && !greater:
		return Equal
	case less && !greater:
		return Before
	case greater && !less:
		return After
	default:
		return Concurrent
	}
}

// String returns a deterministic representation, e.g. "{a:1, b:0}".
func (c Clock) String() string {
	if len(c.seqs) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(c.seqs))
	for _, w := range c.Writers() {
		parts = append(parts, fmt.Sprintf("%s:%d", w, c.seqs[w]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the clock as a JSON object with sorted keys.
func (c Clock) MarshalJSON() ([]byte, error) {
	if c.seqs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.seqs)
}

// UnmarshalJSON decodes a JSON object of writer -> seq.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("unmarshal clock: %w", err)
	}
	*c = New(m)
	return nil
}

func (c Clock) copyMap(extra int) map[string]int64 {
	m := make(map[string]int64, len(c.seqs)+extra)
	for w, s := range c.seqs {
		m[w] = s
	}
	return m
}
