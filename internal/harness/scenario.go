package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bitwebs/bitstream/internal/pipeline"
)

// Scenario is a sequence of appends, rebases, puts and updates over a fixed
// set of writers, with expectations checked after each step.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Writers are registered with the engine before the first step.
	Writers []string `yaml:"writers"`

	// Reducer names the builtin reducer used by rebase steps.
	// Defaults to "identity".
	Reducer string `yaml:"reducer,omitempty"`

	// Sentinel overrides the conflict marker namespace of every view.
	Sentinel string `yaml:"sentinel,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is exactly one of Append, Rebase, Put or Update, plus an optional
// expectation.
type Step struct {
	Append *AppendStep `yaml:"append,omitempty"`
	Rebase *RebaseStep `yaml:"rebase,omitempty"`
	Put    *PutStep    `yaml:"put,omitempty"`
	Update *UpdateStep `yaml:"update,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// AppendStep appends raw payloads to one writer in a single call.
// With Count instead of Payloads, payloads are generated as "A0", "A1", ...
// from the writer's current length.
type AppendStep struct {
	Writer   string   `yaml:"writer"`
	Payloads []string `yaml:"payloads,omitempty"`
	Count    int      `yaml:"count,omitempty"`

	// Isolated appends with a clock that knows only the writer's own head.
	Isolated bool `yaml:"isolated,omitempty"`

	// Clock overrides the clock entirely.
	Clock map[string]int64 `yaml:"clock,omitempty"`
}

// RebaseStep runs the reducer pipeline of one output log.
type RebaseStep struct {
	// Output defaults to "main".
	Output string `yaml:"output,omitempty"`
}

// PutStep appends a put operation as writer.
type PutStep struct {
	Writer   string           `yaml:"writer"`
	Key      string           `yaml:"key"`
	Value    string           `yaml:"value"`
	Isolated bool             `yaml:"isolated,omitempty"`
	Clock    map[string]int64 `yaml:"clock,omitempty"`
}

// UpdateStep applies new batches to a key/value view.
type UpdateStep struct {
	// View defaults to "kv".
	View string `yaml:"view,omitempty"`
}

// Expect lists the observations checked after a step. Nil fields are
// skipped.
type Expect struct {
	// Order is the canonical order after the step, as "A0" refs.
	Order []string `yaml:"order,omitempty"`

	// Ranking is the writer ranking after the step.
	Ranking []string `yaml:"ranking,omitempty"`

	// Outputs are the output log values in canonical order (rebase only).
	Outputs []string `yaml:"outputs,omitempty"`

	// Inits is the pipeline's total Init count (rebase only).
	Inits *int `yaml:"inits,omitempty"`

	// Reinitialized reports whether the run started over (rebase only).
	Reinitialized *bool `yaml:"reinitialized,omitempty"`

	// Reset reports whether the update redelivered everything (update only).
	Reset *bool `yaml:"reset,omitempty"`

	// Values is the full visible key/value content of the view (update only).
	Values map[string]string `yaml:"values,omitempty"`

	// Conflicts maps each key with a marker to its shadowed value (update only).
	Conflicts map[string]string `yaml:"conflicts,omitempty"`

	// Error is the expected engine error code of the step.
	Error string `yaml:"error,omitempty"`
}

// Step kinds.
const (
	OpAppend = "append"
	OpRebase = "rebase"
	OpPut    = "put"
	OpUpdate = "update"
)

// Kind returns which operation the step performs.
func (s *Step) Kind() string {
	switch {
	case s.Append != nil:
		return OpAppend
	case s.Rebase != nil:
		return OpRebase
	case s.Put != nil:
		return OpPut
	case s.Update != nil:
		return OpUpdate
	default:
		return ""
	}
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Reducer == "" {
		scenario.Reducer = "identity"
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Writers) == 0 {
		return fmt.Errorf("writers list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if !slices.Contains(pipeline.Builtins, s.Reducer) {
		return fmt.Errorf("unknown reducer %q (want one of %v)", s.Reducer, pipeline.Builtins)
	}

	seen := make(map[string]bool, len(s.Writers))
	for i, w := range s.Writers {
		if w == "" {
			return fmt.Errorf("writers[%d]: empty writer id", i)
		}
		if seen[w] {
			return fmt.Errorf("writers[%d]: duplicate writer %q", i, w)
		}
		seen[w] = true
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], seen); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its kind.
func validateStep(index int, s *Step, writers map[string]bool) error {
	kinds := 0
	for _, set := range []bool{s.Append != nil, s.Rebase != nil, s.Put != nil, s.Update != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of append, rebase, put, update is required", index)
	}

	switch s.Kind() {
	case OpAppend:
		a := s.Append
		if !writers[a.Writer] {
			return fmt.Errorf("steps[%d]: unknown writer %q", index, a.Writer)
		}
		if (len(a.Payloads) == 0) == (a.Count == 0) {
			return fmt.Errorf("steps[%d]: append needs either payloads or count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("steps[%d]: count must be positive", index)
		}
		if a.Isolated && a.Clock != nil {
			return fmt.Errorf("steps[%d]: isolated and clock are exclusive", index)
		}
	case OpPut:
		p := s.Put
		if !writers[p.Writer] {
			return fmt.Errorf("steps[%d]: unknown writer %q", index, p.Writer)
		}
		if p.Key == "" {
			return fmt.Errorf("steps[%d]: put key is required", index)
		}
		if p.Isolated && p.Clock != nil {
			return fmt.Errorf("steps[%d]: isolated and clock are exclusive", index)
		}
	}

	if e := s.Expect; e != nil {
		kind := s.Kind()
		if kind != OpRebase && (e.Outputs != nil || e.Inits != nil || e.Reinitialized != nil) {
			return fmt.Errorf("steps[%d]: outputs, inits and reinitialized apply to rebase steps", index)
		}
		if kind != OpUpdate && (e.Values != nil || e.Conflicts != nil || e.Reset != nil) {
			return fmt.Errorf("steps[%d]: values, conflicts and reset apply to update steps", index)
		}
	}
	return nil
}
