package engine

import (
	"maps"

	"github.com/bitwebs/bitstream/internal/model"
)

// Snapshot is the canonical order derived from writer-log lengths captured
// once. Appends that happen after capture are not observed by it.
type Snapshot struct {
	lengths map[model.WriterID]int64
	order   []model.EntryRef
}

// NewSnapshot derives a snapshot from explicit lengths.
func NewSnapshot(lengths map[model.WriterID]int64) Snapshot {
	captured := maps.Clone(lengths)
	if captured == nil {
		captured = map[model.WriterID]int64{}
	}
	return Snapshot{
		lengths: captured,
		order:   ComputeOrder(captured),
	}
}

// Lengths returns a copy of the captured log lengths.
func (s Snapshot) Lengths() map[model.WriterID]int64 {
	return maps.Clone(s.lengths)
}

// Length returns the captured length of one writer's log.
func (s Snapshot) Length(w model.WriterID) int64 {
	return s.lengths[w]
}

// Size returns the total number of entries in the snapshot.
func (s Snapshot) Size() int {
	return len(s.order)
}

// Order returns the canonical order.
func (s Snapshot) Order() []model.EntryRef {
	out := make([]model.EntryRef, len(s.order))
	copy(out, s.order)
	return out
}

// ApplyOrder returns the canonical order reversed.
func (s Snapshot) ApplyOrder() []model.EntryRef {
	return Reverse(s.order)
}

// Ranking returns the writer-group ranking.
func (s Snapshot) Ranking() []model.WriterID {
	return Ranking(s.lengths)
}

// Hash fingerprints the canonical order.
func (s Snapshot) Hash() (string, error) {
	return model.OrderHash(s.order)
}
