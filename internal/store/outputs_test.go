package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/model"
)

func out(writer string, seq int64, value string) model.Output {
	return model.Output{Ref: model.EntryRef{Writer: model.WriterID(writer), Seq: seq}, Value: []byte(value)}
}

func TestOutputLog_RewriteAppendAndTruncate(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	log := s.OutputLog("view")

	require.NoError(t, log.Rewrite(ctx, 0, []model.Output{out("c", 0, "c0"), out("c", 1, "c1")}))
	require.NoError(t, log.Rewrite(ctx, 2, []model.Output{out("a", 0, "a0")}))

	got, err := log.Read(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []model.Output{out("c", 0, "c0"), out("c", 1, "c1"), out("a", 0, "a0")}, got)

	require.NoError(t, log.Rewrite(ctx, 1, []model.Output{out("b", 0, "b0")}))
	got, err = log.Read(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []model.Output{out("c", 0, "c0"), out("b", 0, "b0")}, got)

	tail, err := log.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.Output{out("b", 0, "b0")}, tail)
}

func TestOutputLog_RewriteOutOfRange(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	log := s.OutputLog("view")

	require.NoError(t, log.Rewrite(ctx, 0, []model.Output{out("a", 0, "x")}))
	err := log.Rewrite(ctx, 5, []model.Output{out("a", 1, "y")})
	require.Error(t, err)

	n, err := log.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "failed rewrite leaves the log untouched")
}

func TestOutputLogs_ListsNames(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.OutputLog("b").Rewrite(ctx, 0, []model.Output{out("a", 0, "x")}))
	require.NoError(t, s.OutputLog("a").Rewrite(ctx, 0, []model.Output{out("a", 0, "x")}))

	names, err := s.OutputLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
