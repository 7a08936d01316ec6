package engine

import (
	"slices"

	"github.com/bitwebs/bitstream/internal/model"
)

// group is one writer's contribution to the canonical order.
type group struct {
	writer model.WriterID
	length int64
}

// sortedGroups returns the non-empty writer groups ascending by length,
// ties broken by writer id bytes.
func sortedGroups(lengths map[model.WriterID]int64) []group {
	groups := make([]group, 0, len(lengths))
	for w, n := range lengths {
		if n > 0 {
			groups = append(groups, group{writer: w, length: n})
		}
	}
	slices.SortFunc(groups, func(a, b group) int {
		if a.length != b.length {
			if a.length < b.length {
				return -1
			}
			return 1
		}
		switch {
		case a.writer.Less(b.writer):
			return -1
		case b.writer.Less(a.writer):
			return 1
		}
		return 0
	})
	return groups
}

// ComputeOrder returns the canonical order for the given log lengths.
//
// Writer groups are sorted ascending by length with ties broken by writer id;
// within a group entries run from the newest (len-1) down to seq 0. The
// result depends only on the lengths, so every replica holding the same logs
// derives the same order.
func ComputeOrder(lengths map[model.WriterID]int64) []model.EntryRef {
	groups := sortedGroups(lengths)

	var total int64
	for _, g := range groups {
		total += g.length
	}

	order := make([]model.EntryRef, 0, total)
	for _, g := range groups {
		for seq := g.length - 1; seq >= 0; seq-- {
			order = append(order, model.EntryRef{Writer: g.writer, Seq: seq})
		}
	}
	return order
}

// Ranking returns the writer ids of the non-empty groups in canonical order.
func Ranking(lengths map[model.WriterID]int64) []model.WriterID {
	groups := sortedGroups(lengths)
	ranking := make([]model.WriterID, len(groups))
	for i, g := range groups {
		ranking[i] = g.writer
	}
	return ranking
}

// Diverge returns the first index at which a and b differ. When one is a
// prefix of the other the shorter length is returned.
func Diverge(a, b []model.EntryRef) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Reverse returns a reversed copy of order. Applied to a canonical order it
// yields the apply order: largest group first, each group oldest first.
func Reverse(order []model.EntryRef) []model.EntryRef {
	out := slices.Clone(order)
	slices.Reverse(out)
	return out
}
