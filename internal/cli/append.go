package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/model"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Writer   string
	Isolated bool
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append payload...",
		Short: "Append raw payloads to a writer log",
		Long: `Append raw payloads to a writer log in a single call.

By default the entries record everything the writer can see (the heads of
all logs). With --isolated they only know the writer's own previous entry,
which makes them concurrent with every other writer.

Examples:
  bitstream append --writer alice hello world
  bitstream append --writer bob --isolated note`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appendPayloads(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Writer, "writer", "", "writer to append to (defaults to local from config)")
	cmd.Flags().BoolVar(&opts.Isolated, "isolated", false, "append with only the writer's own history")

	return cmd
}

func appendPayloads(opts *AppendOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	writer, err := s.writerOrLocal(opts.Writer)
	if err != nil {
		return err
	}

	var c clock.Clock
	if opts.Isolated {
		c, err = s.eng.Head(ctx, writer)
	} else {
		c, err = s.eng.Latest(ctx)
	}
	if err != nil {
		return out.Fail(ExitFailure, "failed to read clock", err)
	}

	payloads := make([][]byte, len(args))
	for i, a := range args {
		payloads[i] = []byte(a)
	}
	entries, err := s.eng.Append(ctx, writer, c, payloads...)
	if err != nil {
		return out.Fail(ExitFailure, "append rejected", err)
	}

	refs := make([]model.EntryRef, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref()
	}
	return out.Emit(refs, func(w io.Writer) {
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\n", e.Ref(), e.ID)
		}
	})
}
