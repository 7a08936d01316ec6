package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

const passingScenario = `name: tiny
description: two writers, one rebase
writers: [A, B]
steps:
  - append: {writer: A, payloads: [a0]}
  - append: {writer: B, payloads: [b0], isolated: true}
  - rebase: {}
    expect:
      order: [A0, B0]
      outputs: [a0, b0]
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ abc_fixture")
	assert.Contains(t, out, "✓ conflict_clearing")
	assert.Contains(t, out, "✓ rank_swap_count")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", harnessScenarios, "--filter", "rank_*")
	require.NoError(t, err, out)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "rank_swap_count", resp.Data.Scenarios[0].Name)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "tiny.yaml"), []byte(passingScenario), 0644))

	out, err := execute(t, "test", scenarios, "--update")
	require.NoError(t, err, out)
	golden := filepath.Join(dir, "golden", "tiny.golden")
	require.FileExists(t, golden)

	out, err = execute(t, "test", scenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ tiny")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))
	out, err = execute(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	failing := `name: wrong_order
description: expects the wrong order
writers: [A]
steps:
  - append: {writer: A, payloads: [a0]}
    expect:
      order: [A1]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(failing), 0644))

	out, err := execute(t, "test", dir, "--golden", filepath.Join(dir, "none"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_order")
	assert.Contains(t, out, "1 failed")
}
