package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitwebs/bitstream/internal/kv"
	"github.com/bitwebs/bitstream/internal/model"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Writer   string
	Isolated bool
}

// GetResult is a key's current record and the record it shadowed, if any.
type GetResult struct {
	Key      string        `json:"key"`
	Value    string        `json:"value"`
	Record   model.Record  `json:"record"`
	Shadowed *model.Record `json:"shadowed,omitempty"`
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put key value",
		Short: "Append a put operation",
		Long: `Append a put operation to a writer log. The value becomes visible to get
once the key/value view has been updated.

Keys under the conflict namespace ("<sentinel>/...") are rejected.

Examples:
  bitstream put --writer alice color red
  bitstream put --writer bob --isolated color blue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return putKey(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Writer, "writer", "", "writer to append to (defaults to local from config)")
	cmd.Flags().BoolVar(&opts.Isolated, "isolated", false, "put with only the writer's own history")

	return cmd
}

func putKey(opts *PutOptions, key, value string, cmd *cobra.Command) error {
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

	var putOpts []kv.PutOption
	if opts.Isolated {
		putOpts = append(putOpts, kv.Isolated())
	}
	entry, err := s.kvMap(writer).Put(ctx, []byte(key), []byte(value), putOpts...)
	if err != nil {
		return out.Fail(ExitFailure, "put rejected", err)
	}

	return out.Emit(entry.Ref(), func(w io.Writer) {
		fmt.Fprintln(w, entry.Ref())
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get key",
		Short: "Read a key from the key/value view",
		Long: `Bring the key/value view up to date and print the key's value, its
provenance and the concurrent value it shadowed, if any.

Example:
  bitstream get color`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getKey(rootOpts, args[0], cmd)
		},
	}
}

func getKey(opts *RootOptions, key string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts, cmd.OutOrStdout())

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	m := s.kvMap("")
	if _, err := m.Update(ctx); err != nil {
		return out.Fail(ExitFailure, "update failed", err)
	}

	rec, ok, err := m.Record(ctx, []byte(key))
	if err != nil {
		return out.Fail(ExitFailure, "get failed", err)
	}
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("key %q not found", key))
	}
	result := GetResult{Key: key, Value: string(rec.Value), Record: rec}

	shadowed, ok, err := m.Conflict(ctx, []byte(key))
	if err != nil {
		return out.Fail(ExitFailure, "get failed", err)
	}
	if ok {
		result.Shadowed = &shadowed
	}

	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t(%s)\n", rec.Value, formatProvenance(rec.Provenance))
		if result.Shadowed != nil {
			fmt.Fprintf(w, "conflict: %s\t(%s)\n", shadowed.Value, formatProvenance(shadowed.Provenance))
		}
	})
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List keys with a concurrent overwrite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listConflicts(rootOpts, cmd)
		},
	}
}

func listConflicts(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts, cmd.OutOrStdout())

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	m := s.kvMap("")
	if _, err := m.Update(ctx); err != nil {
		return out.Fail(ExitFailure, "update failed", err)
	}
	conflicts, err := m.Conflicts(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "failed to list conflicts", err)
	}

	return out.Emit(conflicts, func(w io.Writer) {
		if len(conflicts) == 0 {
			fmt.Fprintln(w, "No conflicts.")
			return
		}
		for _, c := range conflicts {
			fmt.Fprintf(w, "%s\t%s (%s) shadows %s (%s)\n", c.Key,
				c.Current.Value, formatProvenance(c.Current.Provenance),
				c.Shadowed.Value, formatProvenance(c.Shadowed.Provenance))
		}
	})
}

// formatProvenance renders provenance as "writer:seq", falling back to the
// raw change id when it does not decode.
func formatProvenance(p model.Provenance) string {
	w, err := p.Writer()
	if err != nil {
		return fmt.Sprintf("%s:%d", p.ChangeID, p.Seq)
	}
	return model.EntryRef{Writer: w, Seq: p.Seq}.String()
}
