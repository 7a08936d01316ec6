package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/kv"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/pipeline"
	"github.com/bitwebs/bitstream/internal/store"
	"github.com/bitwebs/bitstream/internal/testutil"
)

const (
	defaultOutput = "main"
	defaultView   = "kv"
)

// Harness is the scenario execution engine. It owns one in-memory store,
// the engine over the scenario's writers, and the pipelines and key/value
// views the steps touch.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	scenario  *Scenario
	pipelines map[string]pipeline.Runner
	views     map[string]*kv.Map
	logger    *slog.Logger
}

// observation is what a step produced, compared against its expect clause.
type observation struct {
	order         []string
	ranking       []string
	outputs       []string
	inits         int
	reinitialized bool
	reset         bool
	values        map[string]string
	conflicts     map[string]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. A step failing with an
// engine error is recorded in the trace; any other failure aborts the run.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logs := make([]engine.WriterLog, 0, len(scenario.Writers))
	for _, w := range scenario.Writers {
		log, err := st.AddWriter(ctx, model.WriterID(w))
		if err != nil {
			return nil, fmt.Errorf("failed to register writer %q: %w", w, err)
		}
		logs = append(logs, log)
	}
	eng, err := engine.New(logs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:     st,
		engine:    eng,
		scenario:  scenario,
		pipelines: make(map[string]pipeline.Runner),
		views:     make(map[string]*kv.Map),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result := NewResult()
	for i := range scenario.Steps {
		if err := h.executeStep(ctx, i, &scenario.Steps[i], result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step *Step, result *Result) error {
	kind := step.Kind()

	var (
		detail map[string]any
		obs    observation
		err    error
	)
	switch kind {
	case OpAppend:
		detail, err = h.executeAppend(ctx, step.Append)
	case OpRebase:
		detail, err = h.executeRebase(ctx, step.Rebase, &obs)
	case OpPut:
		detail, err = h.executePut(ctx, step.Put)
	case OpUpdate:
		detail, err = h.executeUpdate(ctx, step.Update, &obs)
	default:
		return fmt.Errorf("empty step")
	}

	expect := step.Expect
	if err != nil {
		code := engine.Code(err)
		if code == "" {
			return fmt.Errorf("%s: %w", kind, err)
		}
		detail = map[string]any{"error": string(code)}
		if expect == nil || expect.Error != string(code) {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", i, kind, err))
		}
	} else if expect != nil && expect.Error != "" {
		result.AddError(fmt.Sprintf("step %d (%s): expected error %s, step succeeded", i, kind, expect.Error))
	}

	snap, serr := h.engine.Snapshot(ctx)
	if serr != nil {
		return fmt.Errorf("snapshot: %w", serr)
	}
	obs.order = refStrings(snap.Order())
	obs.ranking = writerStrings(snap.Ranking())

	result.AddTrace(i, kind, detail)
	if expect != nil {
		failures := checkExpect(i, kind, expect, obs, err == nil)
		for _, f := range failures {
			result.AddError(f.Error())
		}
	}

	h.logger.Debug("step executed",
		"step", i,
		"op", kind,
		"failed", err != nil,
	)
	return nil
}

// clockFor picks the clock for an append or put: an explicit one, the
// writer's own head, or the latest knowledge of every writer.
func (h *Harness) clockFor(ctx context.Context, w model.WriterID, isolated bool, explicit map[string]int64) (clock.Clock, error) {
	switch {
	case explicit != nil:
		return clock.New(explicit), nil
	case isolated:
		return h.engine.Head(ctx, w)
	default:
		return h.engine.Latest(ctx)
	}
}

func (h *Harness) executeAppend(ctx context.Context, a *AppendStep) (map[string]any, error) {
	w := model.WriterID(a.Writer)
	c, err := h.clockFor(ctx, w, a.Isolated, a.Clock)
	if err != nil {
		return nil, err
	}

	payloads := make([][]byte, 0, len(a.Payloads)+a.Count)
	for _, p := range a.Payloads {
		payloads = append(payloads, []byte(p))
	}
	if a.Count > 0 {
		log, err := h.engine.Writer(w)
		if err != nil {
			return nil, err
		}
		n, err := log.Len(ctx)
		if err != nil {
			return nil, engine.NewStorageError("read log length", err)
		}
		for i := 0; i < a.Count; i++ {
			payloads = append(payloads, testutil.Payload(w, n+int64(i)))
		}
	}

	entries, err := h.engine.Append(ctx, w, c, payloads...)
	if err != nil {
		return nil, err
	}
	refs := make([]model.EntryRef, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref()
	}
	return map[string]any{
		"writer":  a.Writer,
		"entries": refStrings(refs),
	}, nil
}

func (h *Harness) executeRebase(ctx context.Context, r *RebaseStep, obs *observation) (map[string]any, error) {
	name := r.Output
	if name == "" {
		name = defaultOutput
	}
	runner, ok := h.pipelines[name]
	if !ok {
		var err error
		runner, err = pipeline.NewBuiltin(h.scenario.Reducer, h.engine, h.store.OutputLog(name))
		if err != nil {
			return nil, err
		}
		h.pipelines[name] = runner
	}

	res, err := runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	values, err := runner.Values(ctx)
	if err != nil {
		return nil, engine.NewStorageError("read outputs", err)
	}

	obs.outputs = make([]string, len(values))
	for i, v := range values {
		obs.outputs[i] = string(v.Value)
	}
	obs.inits = runner.Inits()
	obs.reinitialized = res.Reinitialized

	return map[string]any{
		"output":        name,
		"reinitialized": res.Reinitialized,
		"reduced":       res.Reduced,
		"carried":       res.Carried,
		"rewrite_from":  res.RewriteFrom,
		"inits":         obs.inits,
		"outputs":       obs.outputs,
	}, nil
}

func (h *Harness) executePut(ctx context.Context, p *PutStep) (map[string]any, error) {
	w := model.WriterID(p.Writer)
	m := kv.New(h.engine, h.store.Index(defaultView), h.mapOptions(kv.WithLocal(w))...)

	var opts []kv.PutOption
	switch {
	case p.Clock != nil:
		opts = append(opts, kv.WithClock(clock.New(p.Clock)))
	case p.Isolated:
		opts = append(opts, kv.Isolated())
	}

	entry, err := m.Put(ctx, []byte(p.Key), []byte(p.Value), opts...)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"writer": p.Writer,
		"key":    p.Key,
		"entry":  refString(entry.Ref()),
	}, nil
}

func (h *Harness) executeUpdate(ctx context.Context, u *UpdateStep, obs *observation) (map[string]any, error) {
	view := u.View
	if view == "" {
		view = defaultView
	}
	m, ok := h.views[view]
	if !ok {
		m = kv.New(h.engine, h.store.Index(view), h.mapOptions()...)
		h.views[view] = m
	}

	res, err := m.Update(ctx)
	if err != nil {
		return nil, err
	}

	items, err := m.Items(ctx)
	if err != nil {
		return nil, err
	}
	obs.values = make(map[string]string, len(items))
	values := make(map[string]any, len(items))
	for _, it := range items {
		obs.values[string(it.Key)] = string(it.Record.Value)
		values[string(it.Key)] = string(it.Record.Value)
	}

	conflicts, err := m.Conflicts(ctx)
	if err != nil {
		return nil, err
	}
	obs.conflicts = make(map[string]string, len(conflicts))
	shadowed := make(map[string]any, len(conflicts))
	for _, c := range conflicts {
		obs.conflicts[string(c.Key)] = string(c.Shadowed.Value)
		shadowed[string(c.Key)] = string(c.Shadowed.Value)
	}
	obs.reset = res.Reset

	return map[string]any{
		"view":      view,
		"reset":     res.Reset,
		"batches":   res.Batches,
		"entries":   res.Entries,
		"values":    values,
		"conflicts": shadowed,
	}, nil
}

func (h *Harness) mapOptions(extra ...kv.Option) []kv.Option {
	var opts []kv.Option
	if h.scenario.Sentinel != "" {
		opts = append(opts, kv.WithSentinel(h.scenario.Sentinel))
	}
	return append(opts, extra...)
}

// refString renders a ref in the compact "A0" form scenarios use.
func refString(r model.EntryRef) string {
	return fmt.Sprintf("%s%d", r.Writer, r.Seq)
}

func refStrings(refs []model.EntryRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = refString(r)
	}
	return out
}

func writerStrings(ws []model.WriterID) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = string(w)
	}
	return out
}
