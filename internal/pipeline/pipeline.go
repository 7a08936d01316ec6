package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/model"
)

// Engine is the part of *engine.Engine a pipeline reads from.
type Engine interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
	Entries(ctx context.Context, refs []model.EntryRef) ([]model.Entry, error)
}

// OutputLog stores materialized outputs in apply order.
// Implemented by *store.OutputLog.
type OutputLog interface {
	Name() string
	Len(ctx context.Context) (int64, error)
	Read(ctx context.Context, from int64) ([]model.Output, error)
	Rewrite(ctx context.Context, from int64, outputs []model.Output) error
}

// State is the lifecycle state of a pipeline.
type State int

const (
	// Uninitialized pipelines reinitialize on their next Run.
	Uninitialized State = iota
	// Active pipelines hold an accumulator matching their output log.
	Active
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result summarizes one Run.
type Result struct {
	Reinitialized bool             `json:"reinitialized"`
	Reduced       int              `json:"reduced"`
	Carried       int              `json:"carried"`
	RewriteFrom   int64            `json:"rewrite_from"`
	Length        int              `json:"length"`
	Ranking       []model.WriterID `json:"ranking"`
}

// Runner is the type-erased view of a Pipeline.
type Runner interface {
	Run(ctx context.Context) (Result, error)
	Values(ctx context.Context) ([]model.Output, error)
	Replay(ctx context.Context) ([]model.Output, error)
	Inits() int
}

// Pipeline maintains one output log with one reducer.
type Pipeline[S any] struct {
	eng     Engine
	out     OutputLog
	reducer Reducer[S]

	mu      sync.Mutex
	state   State
	acc     S
	order   []model.EntryRef
	ranking []model.WriterID
	inits   int
}

// New creates an uninitialized pipeline. The first Run reinitializes and
// overwrites whatever out contains.
func New[S any](eng Engine, out OutputLog, r Reducer[S]) *Pipeline[S] {
	return &Pipeline[S]{
		eng:     eng,
		out:     out,
		reducer: r,
	}
}

// State returns the pipeline's lifecycle state.
func (p *Pipeline[S]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Inits returns how many times Init was called.
func (p *Pipeline[S]) Inits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits
}

// Accumulator returns the current reducer state.
func (p *Pipeline[S]) Accumulator() S {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acc
}

// Run brings the output log up to date with the current canonical order.
//
// It reinitializes when the pipeline is uninitialized, when the writer-group
// ranking changed since the last run, or when a previously materialized
// entry is no longer part of the order. Otherwise only new entries are
// reduced. On error the output log and the accumulator are unchanged.
// A concurrent Run on the same pipeline fails with a Reentrancy error.
func (p *Pipeline[S]) Run(ctx context.Context) (Result, error) {
	if !p.mu.TryLock() {
		return Result{}, engine.NewReentrancyError("pipeline " + p.out.Name())
	}
	defer p.mu.Unlock()

	snap, err := p.eng.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("run pipeline: %w", err)
	}
	order := snap.Order()
	ranking := snap.Ranking()

	if reason := p.reinitReason(order, ranking); reason != "" {
		slog.Info("pipeline reinitializing",
			"output", p.out.Name(),
			"reducer", p.reducer.Name,
			"reason", reason,
			"entries", len(order),
		)
		return p.reinitialize(ctx, order, ranking)
	}
	return p.advance(ctx, order, ranking)
}

func (p *Pipeline[S]) reinitReason(order []model.EntryRef, ranking []model.WriterID) string {
	if p.state == Uninitialized {
		return "uninitialized"
	}
	if !slices.Equal(p.ranking, ranking) {
		joined := mapset.NewThreadUnsafeSet(ranking...).Difference(mapset.NewThreadUnsafeSet(p.ranking...))
		if joined.Cardinality() > 0 {
			return fmt.Sprintf("writers joined %v", sortedWriters(joined))
		}
		return "ranking changed"
	}
	current := mapset.NewThreadUnsafeSet(order...)
	if !current.IsSuperset(mapset.NewThreadUnsafeSet(p.order...)) {
		return "materialized entries missing"
	}
	return ""
}

func (p *Pipeline[S]) reinitialize(ctx context.Context, order []model.EntryRef, ranking []model.WriterID) (Result, error) {
	acc, outputs, err := p.replay(ctx, order)
	if err != nil {
		return Result{}, fmt.Errorf("run pipeline: %w", err)
	}

	if err := p.out.Rewrite(ctx, 0, reverseOutputs(outputs)); err != nil {
		return Result{}, fmt.Errorf("run pipeline: %w", engine.NewStorageError("rewrite output", err))
	}

	p.commit(acc, order, ranking)
	p.inits++

	return Result{
		Reinitialized: true,
		Reduced:       len(order),
		Length:        len(order),
		Ranking:       ranking,
	}, nil
}

// replay folds order from a fresh Init, returning outputs in canonical order.
func (p *Pipeline[S]) replay(ctx context.Context, order []model.EntryRef) (S, []model.Output, error) {
	acc := p.reducer.init()
	entries, err := p.eng.Entries(ctx, order)
	if err != nil {
		return acc, nil, err
	}

	outputs := make([]model.Output, len(entries))
	for i, entry := range entries {
		var value []byte
		acc, value, err = p.reducer.Reduce(ctx, acc, entry)
		if err != nil {
			return acc, nil, fmt.Errorf("reduce %s: %w", entry.Ref(), err)
		}
		outputs[i] = model.Output{Ref: entry.Ref(), Value: value}
	}
	return acc, outputs, nil
}

func (p *Pipeline[S]) advance(ctx context.Context, order []model.EntryRef, ranking []model.WriterID) (Result, error) {
	known := mapset.NewThreadUnsafeSet(p.order...)
	var fresh []model.EntryRef
	for _, ref := range order {
		if !known.Contains(ref) {
			fresh = append(fresh, ref)
		}
	}

	result := Result{Length: len(order), Ranking: ranking}
	if len(fresh) == 0 {
		result.Carried = len(order)
		result.RewriteFrom = int64(len(order))
		return result, nil
	}

	entries, err := p.eng.Entries(ctx, fresh)
	if err != nil {
		return Result{}, fmt.Errorf("run pipeline: %w", err)
	}
	acc := p.acc
	values := make(map[model.EntryRef][]byte, len(entries))
	for _, entry := range entries {
		var value []byte
		acc, value, err = p.reducer.Reduce(ctx, acc, entry)
		if err != nil {
			return Result{}, fmt.Errorf("run pipeline: reduce %s: %w", entry.Ref(), err)
		}
		values[entry.Ref()] = value
	}

	physical := engine.Reverse(order)
	from := engine.Diverge(engine.Reverse(p.order), physical)

	carried, err := p.out.Read(ctx, int64(from))
	if err != nil {
		return Result{}, fmt.Errorf("run pipeline: %w", engine.NewStorageError("read output", err))
	}
	for _, o := range carried {
		values[o.Ref] = o.Value
	}

	tail := make([]model.Output, 0, len(physical)-from)
	for _, ref := range physical[from:] {
		value, ok := values[ref]
		if !ok {
			return Result{}, fmt.Errorf("run pipeline: %w",
				engine.NewStorageError("read output", fmt.Errorf("no output for %s", ref)))
		}
		tail = append(tail, model.Output{Ref: ref, Value: value})
	}

	if err := p.out.Rewrite(ctx, int64(from), tail); err != nil {
		return Result{}, fmt.Errorf("run pipeline: %w", engine.NewStorageError("rewrite output", err))
	}

	p.commit(acc, order, ranking)

	result.Reduced = len(fresh)
	result.Carried = len(order) - len(fresh)
	result.RewriteFrom = int64(from)
	slog.Debug("pipeline advanced",
		"output", p.out.Name(),
		"reduced", result.Reduced,
		"rewrite_from", from,
	)
	return result, nil
}

func (p *Pipeline[S]) commit(acc S, order []model.EntryRef, ranking []model.WriterID) {
	p.acc = acc
	p.order = order
	p.ranking = ranking
	p.state = Active
}

// Values returns the output log in canonical order.
func (p *Pipeline[S]) Values(ctx context.Context) ([]model.Output, error) {
	outputs, err := p.out.Read(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("values: %w", engine.NewStorageError("read output", err))
	}
	return reverseOutputs(outputs), nil
}

// Replay computes the outputs of a from-scratch run over the current order
// without touching the output log or the pipeline's state.
func (p *Pipeline[S]) Replay(ctx context.Context) ([]model.Output, error) {
	snap, err := p.eng.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	_, outputs, err := p.replay(ctx, snap.Order())
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return outputs, nil
}

func reverseOutputs(outputs []model.Output) []model.Output {
	out := slices.Clone(outputs)
	slices.Reverse(out)
	if out == nil {
		out = []model.Output{}
	}
	return out
}

func sortedWriters(set mapset.Set[model.WriterID]) []model.WriterID {
	ids := set.ToSlice()
	slices.Sort(ids)
	return ids
}
