package cli

import (
	"fmt"
	"io"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/bitwebs/bitstream/internal/model"
)

// OrderResult is the canonical order of the current logs.
type OrderResult struct {
	Order   []model.EntryRef         `json:"order"`
	Ranking []model.WriterID         `json:"ranking"`
	Lengths map[model.WriterID]int64 `json:"lengths"`
	Hash    string                   `json:"hash"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the canonical order",
		Long: `Print the canonical order of all writer logs, shortest group first.

With --verbose the full snapshot is dumped as well.

Examples:
  bitstream order
  bitstream order --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOrder(rootOpts, cmd)
		},
	}
}

func printOrder(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts, cmd.OutOrStdout())

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	snap, err := s.eng.Snapshot(ctx)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to read logs", err)
	}
	hash, err := snap.Hash()
	if err != nil {
		return out.Fail(ExitFailure, "failed to hash order", err)
	}

	result := OrderResult{
		Order:   snap.Order(),
		Ranking: snap.Ranking(),
		Lengths: snap.Lengths(),
		Hash:    hash,
	}
	return out.Emit(result, func(w io.Writer) {
		if opts.Verbose {
			dump := litter.Options{HidePrivateFields: false, Compact: false}
			fmt.Fprintln(w, dump.Sdump(snap))
		}
		for _, ref := range result.Order {
			fmt.Fprintln(w, ref)
		}
		fmt.Fprintf(w, "ranking: %v\n", result.Ranking)
		fmt.Fprintf(w, "hash: %s\n", result.Hash)
	})
}
