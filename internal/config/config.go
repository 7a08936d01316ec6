// Package config loads the bitstream configuration file.
//
// Files are CUE (JSON is valid CUE) and are unified with an embedded schema
// that supplies defaults and rejects unknown fields.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved configuration.
type Config struct {
	Database string `json:"database"`
	Local    string `json:"local,omitempty"`
	Sentinel string `json:"sentinel"`
	Output   string `json:"output"`
	View     string `json:"view"`
	Reducer  string `json:"reducer"`
	Listen   string `json:"listen"`
}

// Error is a configuration error with its CUE source position, if known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() (*Config, error) {
	return Parse(nil, "defaults")
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema. filename is used in
// error positions.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	if len(data) > 0 {
		file := ctx.CompileBytes(data, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		value = def.Unify(file)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	return &cfg, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}

	first := errs[0]
	cfgErr := &Error{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		cfgErr.Pos = positions[0]
	}
	return cfgErr
}
