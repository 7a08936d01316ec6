package model

import (
	"sync"

	"github.com/google/uuid"
)

// WriterIDGenerator creates identities for new writer logs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type WriterIDGenerator interface {
	Generate() WriterID
}

// UUIDv7Generator generates time-sortable UUIDv7 writer ids.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 writer id.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() WriterID {
	return WriterID(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined writer ids in order.
// Safe for concurrent use.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []WriterID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...WriterID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics once all ids have been consumed, to surface test misconfiguration.
func (g *FixedGenerator) Generate() WriterID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all writer ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
