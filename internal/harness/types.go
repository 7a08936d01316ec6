package harness

// TraceEvent records what one scenario step did.
type TraceEvent struct {
	Step   int            `json:"step"`
	Op     string         `json:"op"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause matched.
	Pass bool `json:"pass"`

	// Trace has one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends the event for one step.
func (r *Result) AddTrace(step int, op string, detail map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:   step,
		Op:     op,
		Detail: detail,
	})
}
