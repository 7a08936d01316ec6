package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/bitwebs/bitstream/internal/model"
)

// Reducer folds entries into an accumulator of type S.
//
// Both functions must be deterministic. Reduce must return a new state
// rather than mutate its argument, since the pipeline discards the returned
// state when the surrounding write fails.
type Reducer[S any] struct {
	// Name identifies the reducer in logs.
	Name string

	// Init returns the initial accumulator. Nil yields the zero S.
	Init func() S

	// Reduce folds one entry and returns the new accumulator and the
	// output bytes for the entry.
	Reduce func(ctx context.Context, acc S, e model.Entry) (S, []byte, error)
}

func (r Reducer[S]) init() S {
	if r.Init == nil {
		var zero S
		return zero
	}
	return r.Init()
}

// Identity outputs each payload unchanged.
func Identity() Reducer[struct{}] {
	return Reducer[struct{}]{
		Name: "identity",
		Reduce: func(_ context.Context, acc struct{}, e model.Entry) (struct{}, []byte, error) {
			return acc, bytes.Clone(e.Payload), nil
		},
	}
}

// Upper outputs each payload upper-cased.
func Upper() Reducer[struct{}] {
	return Reducer[struct{}]{
		Name: "upper",
		Reduce: func(_ context.Context, acc struct{}, e model.Entry) (struct{}, []byte, error) {
			return acc, bytes.ToUpper(e.Payload), nil
		},
	}
}

// Count outputs the running number of entries reduced since Init.
func Count() Reducer[int64] {
	return Reducer[int64]{
		Name: "count",
		Init: func() int64 { return 0 },
		Reduce: func(_ context.Context, acc int64, _ model.Entry) (int64, []byte, error) {
			acc++
			return acc, []byte(strconv.FormatInt(acc, 10)), nil
		},
	}
}

// Builtins lists the reducer names accepted by NewBuiltin.
var Builtins = []string{"identity", "upper", "count"}

// NewBuiltin creates a pipeline running the named builtin reducer.
func NewBuiltin(name string, eng Engine, out OutputLog) (Runner, error) {
	switch name {
	case "identity":
		return New(eng, out, Identity()), nil
	case "upper":
		return New(eng, out, Upper()), nil
	case "count":
		return New(eng, out, Count()), nil
	default:
		return nil, fmt.Errorf("unknown reducer %q (want one of %v)", name, Builtins)
	}
}
