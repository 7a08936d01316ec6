package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/engine"
)

func TestOutputFormatter_JSONEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Emit(map[string]string{"result": "success"}, func(io.Writer) {
		t.Fatal("text renderer called in json mode")
	})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Emit(42, func(w io.Writer) {
		fmt.Fprintln(w, "forty-two")
	})
	require.NoError(t, err)
	assert.Equal(t, "forty-two\n", buf.String())
}

func TestOutputFormatter_JSONFailEngineCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail(ExitFailure, "append rejected", engine.NewUnknownWriterError("Z"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, engine.IsUnknownWriter(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_WRITER", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "append rejected")
}

func TestOutputFormatter_JSONFailPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	_ = formatter.Fail(ExitCommandError, "boom", errors.New("disk"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "E_COMMAND", resp.Error.Code)
}

func TestOutputFormatter_TextFailWritesNothing(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(ExitFailure, "rejected", errors.New("nope"))
	require.Error(t, err)
	assert.Equal(t, "rejected: nope", err.Error())
	assert.Empty(t, buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitCommandError, "x", nil))))
}
