package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitwebs/bitstream/internal/model"
)

// WriterOptions holds flags for the writer commands.
type WriterOptions struct {
	*RootOptions

	// Generator creates ids for "writer add" without an argument.
	// If nil, defaults to UUIDv7Generator.
	Generator model.WriterIDGenerator
}

// WriterInfo describes one registered writer.
type WriterInfo struct {
	ID     model.WriterID `json:"id"`
	Length int64          `json:"length"`
}

// NewWriterCommand creates the writer command group.
func NewWriterCommand(rootOpts *RootOptions) *cobra.Command {
	return newWriterCommand(&WriterOptions{RootOptions: rootOpts})
}

func newWriterCommand(opts *WriterOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "writer",
		Short: "Manage writer logs",
	}
	cmd.AddCommand(newWriterAddCommand(opts))
	cmd.AddCommand(newWriterListCommand(opts))
	return cmd
}

func newWriterAddCommand(opts *WriterOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add [id]",
		Short: "Register a writer log",
		Long: `Register a writer log. Without an id a UUIDv7 is generated.

Examples:
  bitstream writer add alice
  bitstream writer add --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addWriter(opts, args, cmd)
		},
	}
}

func addWriter(opts *WriterOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	var id model.WriterID
	if len(args) == 1 {
		id = model.WriterID(args[0])
	} else {
		gen := opts.Generator
		if gen == nil {
			gen = model.UUIDv7Generator{}
		}
		id = gen.Generate()
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.store.AddWriter(ctx, id); err != nil {
		return out.Fail(ExitCommandError, "failed to add writer", err)
	}
	return out.Emit(WriterInfo{ID: id}, func(w io.Writer) {
		fmt.Fprintln(w, id)
	})
}

func newWriterListCommand(opts *WriterOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List writer logs and their lengths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listWriters(opts, cmd)
		},
	}
}

func listWriters(opts *WriterOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	snap, err := s.eng.Snapshot(ctx)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to read logs", err)
	}
	writers := s.eng.Writers()
	infos := make([]WriterInfo, len(writers))
	for i, id := range writers {
		infos[i] = WriterInfo{ID: id, Length: snap.Length(id)}
	}

	return out.Emit(infos, func(w io.Writer) {
		if len(infos) == 0 {
			fmt.Fprintln(w, "No writers registered.")
			return
		}
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\n", info.ID, info.Length)
		}
	})
}
