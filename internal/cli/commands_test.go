package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/config"
	"github.com/bitwebs/bitstream/internal/model"
)

// execute runs a fresh root command and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// dbRunner binds execute to one database file.
func dbRunner(t *testing.T) func(args ...string) (string, error) {
	db := filepath.Join(t.TempDir(), "bitstream.db")
	return func(args ...string) (string, error) {
		return execute(t, append([]string{"--db", db}, args...)...)
	}
}

func mustRun(t *testing.T, run func(args ...string) (string, error), args ...string) string {
	t.Helper()
	out, err := run(args...)
	require.NoError(t, err, "bitstream %v", args)
	return out
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestWriterAddAndList(t *testing.T) {
	run := dbRunner(t)

	assert.Equal(t, "No writers registered.\n", mustRun(t, run, "writer", "list"))
	assert.Equal(t, "A\n", mustRun(t, run, "writer", "add", "A"))
	mustRun(t, run, "writer", "add", "B")
	mustRun(t, run, "append", "--writer", "A", "a0")

	var infos []WriterInfo
	decodeData(t, mustRun(t, run, "--format", "json", "writer", "list"), &infos)
	assert.Equal(t, []WriterInfo{{ID: "A", Length: 1}, {ID: "B", Length: 0}}, infos)
}

func TestWriterAdd_Generated(t *testing.T) {
	run := dbRunner(t)

	var info WriterInfo
	decodeData(t, mustRun(t, run, "--format", "json", "writer", "add"), &info)
	assert.Len(t, info.ID, 36)
}

func TestWriterAdd_UsesGenerator(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Database = filepath.Join(t.TempDir(), "bitstream.db")
	opts := &WriterOptions{
		RootOptions: &RootOptions{Format: "text", Config: cfg},
		Generator:   model.NewFixedGenerator("gen-1", "gen-2"),
	}

	for _, want := range []string{"gen-1\n", "gen-2\n"} {
		out := &bytes.Buffer{}
		cmd := newWriterCommand(opts)
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"add"})
		require.NoError(t, cmd.Execute())
		assert.Equal(t, want, out.String())
	}

	run := func(args ...string) (string, error) {
		return execute(t, append([]string{"--db", cfg.Database}, args...)...)
	}
	assert.Equal(t, "gen-1\t0\ngen-2\t0\n", mustRun(t, run, "writer", "list"))
}

func TestAppendAndOrder(t *testing.T) {
	run := dbRunner(t)
	mustRun(t, run, "writer", "add", "A")
	mustRun(t, run, "writer", "add", "B")

	var refs []model.EntryRef
	decodeData(t, mustRun(t, run, "--format", "json", "append", "--writer", "A", "a0", "a1"), &refs)
	assert.Equal(t, []model.EntryRef{{Writer: "A", Seq: 0}, {Writer: "A", Seq: 1}}, refs)
	mustRun(t, run, "append", "--writer", "B", "--isolated", "b0")

	var order OrderResult
	decodeData(t, mustRun(t, run, "--format", "json", "order"), &order)
	assert.Equal(t, []model.EntryRef{{Writer: "B", Seq: 0}, {Writer: "A", Seq: 1}, {Writer: "A", Seq: 0}}, order.Order)
	assert.Equal(t, []model.WriterID{"B", "A"}, order.Ranking)
	assert.Equal(t, int64(2), order.Lengths["A"])
	assert.Len(t, order.Hash, 64)

	text := mustRun(t, run, "order")
	assert.Contains(t, text, "B:0\nA:1\nA:0\n")
	assert.Contains(t, text, "hash: "+order.Hash)
}

func TestAppend_Errors(t *testing.T) {
	run := dbRunner(t)
	mustRun(t, run, "writer", "add", "A")

	_, err := run("append", "a0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no writer")

	out, err := run("--format", "json", "append", "--writer", "Z", "z0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"UNKNOWN_WRITER"`)
}

func TestRebase(t *testing.T) {
	run := dbRunner(t)
	mustRun(t, run, "writer", "add", "A")
	mustRun(t, run, "writer", "add", "B")
	mustRun(t, run, "append", "--writer", "A", "a0", "a1")
	mustRun(t, run, "append", "--writer", "B", "--isolated", "b0")

	text := mustRun(t, run, "rebase")
	assert.Contains(t, text, "B:0\tb0\nA:1\ta1\nA:0\ta0\n")
	assert.Contains(t, text, "main: 3 entries reduced")

	var res RebaseResult
	decodeData(t, mustRun(t, run, "--format", "json", "rebase", "--output", "counts", "--reducer", "count"), &res)
	assert.Equal(t, "counts", res.Output)
	assert.True(t, res.Run.Reinitialized)
	require.Len(t, res.Values, 3)
	assert.Equal(t, "1", string(res.Values[0].Value))
	assert.Equal(t, "3", string(res.Values[2].Value))

	_, err := run("rebase", "--reducer", "median")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPutGetConflicts(t *testing.T) {
	run := dbRunner(t)
	mustRun(t, run, "writer", "add", "A")
	mustRun(t, run, "writer", "add", "B")

	assert.Equal(t, "A:0\n", mustRun(t, run, "put", "--writer", "A", "k", "a"))
	mustRun(t, run, "put", "--writer", "B", "--isolated", "k", "b")

	// Equal lengths order A before B, so A applies last and wins.
	assert.Equal(t, "a\t(A:0)\nconflict: b\t(B:0)\n", mustRun(t, run, "get", "k"))

	var got GetResult
	decodeData(t, mustRun(t, run, "--format", "json", "get", "k"), &got)
	assert.Equal(t, "a", got.Value)
	require.NotNil(t, got.Shadowed)
	assert.Equal(t, "b", string(got.Shadowed.Value))

	assert.Equal(t, "k\ta (A:0) shadows b (B:0)\n", mustRun(t, run, "conflicts"))

	_, err := run("get", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := run("--format", "json", "put", "--writer", "A", "_conflict/k", "v")
	require.Error(t, err)
	assert.Contains(t, out, `"code":"RESERVED_KEY"`)
}

func TestConflicts_None(t *testing.T) {
	run := dbRunner(t)
	mustRun(t, run, "writer", "add", "A")
	mustRun(t, run, "put", "--writer", "A", "k", "a")
	mustRun(t, run, "put", "--writer", "A", "k", "b")

	assert.Equal(t, "b\t(A:1)\n", mustRun(t, run, "get", "k"))
	assert.Equal(t, "No conflicts.\n", mustRun(t, run, "conflicts"))
}

func TestReplay(t *testing.T) {
	run := dbRunner(t)
	mustRun(t, run, "writer", "add", "A")
	mustRun(t, run, "writer", "add", "B")
	mustRun(t, run, "append", "--writer", "A", "a0", "a1")
	mustRun(t, run, "append", "--writer", "B", "--isolated", "b0")

	assert.Contains(t, mustRun(t, run, "replay"), "No output logs found.")

	mustRun(t, run, "rebase")
	var res ReplayResult
	decodeData(t, mustRun(t, run, "--format", "json", "replay"), &res)
	assert.True(t, res.AllMatch)
	assert.Equal(t, 3, res.Entries)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, OutputCheck{Name: "main", Stored: 3, Replayed: 3, Match: true, Diverge: -1}, res.Outputs[0])

	mustRun(t, run, "append", "--writer", "B", "b1")
	out, err := run("replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ main differs at 0")
}

func TestFirstDifference(t *testing.T) {
	a := model.Output{Ref: model.EntryRef{Writer: "A", Seq: 0}, Value: []byte("x")}
	b := model.Output{Ref: model.EntryRef{Writer: "B", Seq: 0}, Value: []byte("x")}
	a2 := model.Output{Ref: a.Ref, Value: []byte("y")}

	assert.Equal(t, -1, firstDifference(nil, nil))
	assert.Equal(t, -1, firstDifference([]model.Output{a, b}, []model.Output{a, b}))
	assert.Equal(t, 0, firstDifference([]model.Output{a}, []model.Output{a2}))
	assert.Equal(t, 1, firstDifference([]model.Output{a, a}, []model.Output{a, b}))
	assert.Equal(t, 1, firstDifference([]model.Output{a}, []model.Output{a, b}))
}
