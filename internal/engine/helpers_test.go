package engine

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestEngine creates an engine over fresh logs for the given writers.
func newTestEngine(t *testing.T, writers ...model.WriterID) (*Engine, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	logs := make([]WriterLog, len(writers))
	for i, w := range writers {
		logs[i] = s.WriterLog(w)
	}
	e, err := New(logs...)
	require.NoError(t, err)
	return e, s
}

// appendN appends n entries to w one at a time, each with the writer's own
// head clock.
func appendN(t *testing.T, e *Engine, w model.WriterID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c, err := e.Head(t.Context(), w)
		require.NoError(t, err)
		_, err = e.Append(t.Context(), w, c, []byte(fmt.Sprintf("%s%d", w, i)))
		require.NoError(t, err)
	}
}

// refs parses "A0 B1" style shorthand.
func refs(t *testing.T, short ...string) []model.EntryRef {
	t.Helper()
	out := make([]model.EntryRef, len(short))
	for i, s := range short {
		var seq int64
		_, err := fmt.Sscanf(s[1:], "%d", &seq)
		require.NoError(t, err)
		out[i] = model.EntryRef{Writer: model.WriterID(s[:1]), Seq: seq}
	}
	return out
}

func clk(m map[string]int64) clock.Clock {
	return clock.New(m)
}
