package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bitstream", cmd.Use)
	assert.Contains(t, cmd.Long, "deterministic order")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"writer", "add"},
		{"writer", "list"},
		{"append"},
		{"order"},
		{"rebase"},
		{"put"},
		{"get"},
		{"conflicts"},
		{"replay"},
		{"serve"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		path  []string
		flags []string
	}{
		{[]string{"append"}, []string{"writer", "isolated"}},
		{[]string{"put"}, []string{"writer", "isolated"}},
		{[]string{"rebase"}, []string{"output", "reducer"}},
		{[]string{"replay"}, []string{"reducer"}},
		{[]string{"serve"}, []string{"listen"}},
		{[]string{"test"}, []string{"update", "filter", "golden"}},
	}

	cmd := NewRootCommand()
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		for _, name := range tt.flags {
			assert.NotNil(t, sub.Flags().Lookup(name), "%v --%s", tt.path, name)
		}
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "order")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestResolveConfig_FileAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bitstream.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
database: "from-file.db"
local:    "alice"
reducer:  "count"
`), 0644))

	opts := &RootOptions{ConfigPath: path}
	require.NoError(t, opts.resolveConfig())
	assert.Equal(t, "from-file.db", opts.Config.Database)
	assert.Equal(t, "alice", opts.Config.Local)
	assert.Equal(t, "count", opts.Config.Reducer)
	assert.Equal(t, "_conflict", opts.Config.Sentinel)

	opts = &RootOptions{ConfigPath: path, Database: "flag.db"}
	require.NoError(t, opts.resolveConfig())
	assert.Equal(t, "flag.db", opts.Config.Database)
}

func TestResolveConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte(`reducer: "median"`), 0644))

	opts := &RootOptions{ConfigPath: path}
	err := opts.resolveConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
