package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/model"
)

// Batch is a run of consecutive entries from one writer that were appended
// together, delivered to a View in apply order.
type Batch struct {
	// Writer owns every entry of the batch.
	Writer model.WriterID

	// Entries in ascending seq order.
	Entries []model.Entry

	// Clock is the shared clock of the entries advanced to the last seq.
	Clock clock.Clock

	// Reset tells the view to discard everything applied so far before
	// applying this batch.
	Reset bool
}

// Refs returns the refs of the batch's entries.
func (b Batch) Refs() []model.EntryRef {
	refs := make([]model.EntryRef, len(b.Entries))
	for i, e := range b.Entries {
		refs[i] = e.Ref()
	}
	return refs
}

// View consumes batches and remembers which entries it applied.
type View interface {
	// Applied returns the refs applied so far, in apply order.
	Applied(ctx context.Context) ([]model.EntryRef, error)

	// Apply applies one batch atomically, recording its refs.
	Apply(ctx context.Context, b Batch) error
}

// UpdateResult summarizes one Update call.
type UpdateResult struct {
	Reset   bool             `json:"reset"`
	Batches int              `json:"batches"`
	Entries int              `json:"entries"`
	Ranking []model.WriterID `json:"ranking"`
}

// Update delivers every entry the view has not applied yet.
//
// The view's applied refs are compared with the current apply order. When
// they are a prefix, only the tail is delivered. Otherwise the first batch
// carries Reset and the whole apply order is redelivered. Batches are
// applied one at a time; a failing batch stops the update and is returned
// wrapped, leaving earlier batches committed.
func (e *Engine) Update(ctx context.Context, v View) (UpdateResult, error) {
	e.update.Lock()
	defer e.update.Unlock()

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update: %w", err)
	}
	target := snap.ApplyOrder()
	result := UpdateResult{Ranking: snap.Ranking()}

	applied, err := v.Applied(ctx)
	if err != nil {
		return result, fmt.Errorf("update: %w", NewStorageError("read applied", err))
	}

	d := Diverge(applied, target)
	start := d
	if d < len(applied) {
		result.Reset = true
		start = 0
		slog.Info("view diverged, redelivering",
			"applied", len(applied),
			"diverge", d,
			"entries", len(target),
		)
	}

	entries, err := e.Entries(ctx, target[start:])
	if err != nil {
		return result, fmt.Errorf("update: %w", err)
	}

	batches := SplitBatches(entries)
	if result.Reset {
		if len(batches) == 0 {
			batches = []Batch{{}}
		}
		batches[0].Reset = true
	}

	for _, b := range batches {
		if err := v.Apply(ctx, b); err != nil {
			return result, fmt.Errorf("update: apply batch %s from %d: %w", b.Writer, firstSeq(b), err)
		}
		result.Batches++
		result.Entries += len(b.Entries)
	}

	if result.Entries > 0 || result.Reset {
		slog.Info("view updated",
			"reset", result.Reset,
			"batches", result.Batches,
			"entries", result.Entries,
		)
	}
	return result, nil
}

// SplitBatches groups entries into maximal runs of consecutive positions of
// one writer that share a clock.
func SplitBatches(entries []model.Entry) []Batch {
	var batches []Batch
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) &&
			entries[j].Writer == entries[i].Writer &&
			entries[j].Seq == entries[j-1].Seq+1 &&
			entries[j].Clock.Equal(entries[i].Clock) {
			j++
		}
		run := entries[i:j]
		last := run[len(run)-1]
		batches = append(batches, Batch{
			Writer:  last.Writer,
			Entries: run,
			Clock:   last.Clock.With(string(last.Writer), last.Seq),
		})
		i = j
	}
	return batches
}

func firstSeq(b Batch) int64 {
	if len(b.Entries) == 0 {
		return 0
	}
	return b.Entries[0].Seq
}
