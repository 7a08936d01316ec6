package harness

import (
	"fmt"
	"maps"
	"slices"
)

// ExpectationError is one mismatch between an expect clause and what the
// step produced.
type ExpectationError struct {
	Step     int
	Op       string
	Field    string
	Expected any
	Actual   any
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("step %d (%s): %s: expected %v, got %v", e.Step, e.Op, e.Field, e.Expected, e.Actual)
}

// checkExpect compares the expect clause of step i with its observation.
// Step-specific fields are only checked when the step succeeded.
func checkExpect(i int, op string, e *Expect, obs observation, succeeded bool) []*ExpectationError {
	var failures []*ExpectationError
	fail := func(field string, expected, actual any) {
		failures = append(failures, &ExpectationError{
			Step:     i,
			Op:       op,
			Field:    field,
			Expected: expected,
			Actual:   actual,
		})
	}

	if e.Order != nil && !slices.Equal(e.Order, obs.order) {
		fail("order", e.Order, obs.order)
	}
	if e.Ranking != nil && !slices.Equal(e.Ranking, obs.ranking) {
		fail("ranking", e.Ranking, obs.ranking)
	}
	if !succeeded {
		return failures
	}

	if e.Outputs != nil && !slices.Equal(e.Outputs, obs.outputs) {
		fail("outputs", e.Outputs, obs.outputs)
	}
	if e.Inits != nil && *e.Inits != obs.inits {
		fail("inits", *e.Inits, obs.inits)
	}
	if e.Reinitialized != nil && *e.Reinitialized != obs.reinitialized {
		fail("reinitialized", *e.Reinitialized, obs.reinitialized)
	}
	if e.Reset != nil && *e.Reset != obs.reset {
		fail("reset", *e.Reset, obs.reset)
	}
	if e.Values != nil && !maps.Equal(e.Values, obs.values) {
		fail("values", e.Values, obs.values)
	}
	if e.Conflicts != nil && !maps.Equal(e.Conflicts, obs.conflicts) {
		fail("conflicts", e.Conflicts, obs.conflicts)
	}
	return failures
}
