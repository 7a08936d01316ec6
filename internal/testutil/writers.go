package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/store"
)

// Writers returns n fixed writer ids "A", "B", ... Past "Z" ids continue
// as "W26", "W27", ...
func Writers(n int) []model.WriterID {
	ids := make([]model.WriterID, n)
	for i := range ids {
		if i < 26 {
			ids[i] = model.WriterID(rune('A' + i))
		} else {
			ids[i] = model.WriterID(fmt.Sprintf("W%d", i))
		}
	}
	return ids
}

// Payload is the conventional test payload for entry seq of writer w: "A0", "B3".
func Payload(w model.WriterID, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%d", w, seq))
}

// OpenStore opens a SQLite store in a temporary directory that is closed
// when the test finishes.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
