package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/pipeline"
)

// RebaseOptions holds flags for the rebase command.
type RebaseOptions struct {
	*RootOptions
	Output  string
	Reducer string
}

// RebaseResult reports one pipeline run and the resulting output log.
type RebaseResult struct {
	Output  string          `json:"output"`
	Reducer string          `json:"reducer"`
	Run     pipeline.Result `json:"run"`
	Values  []model.Output  `json:"values"`
}

// NewRebaseCommand creates the rebase command.
func NewRebaseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Materialize an output log with a reducer",
		Long: `Fold the canonical order through a builtin reducer and store the results
in an output log. Reducer state lives in memory, so every invocation starts
from Init; the long-running serve command maintains the log incrementally.

Reducers: identity, upper, count

Examples:
  bitstream rebase
  bitstream rebase --output counts --reducer count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebase(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Output, "output", "", "output log name (defaults to config output)")
	cmd.Flags().StringVar(&opts.Reducer, "reducer", "", "builtin reducer (defaults to config reducer)")

	return cmd
}

func runRebase(opts *RebaseOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	output := firstNonEmpty(opts.Output, opts.Config.Output)
	reducer := firstNonEmpty(opts.Reducer, opts.Config.Reducer)

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	runner, err := pipeline.NewBuiltin(reducer, s.eng, s.store.OutputLog(output))
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "rebase failed", err)
	}
	values, err := runner.Values(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "failed to read output log", err)
	}

	result := RebaseResult{Output: output, Reducer: reducer, Run: res, Values: values}
	return out.Emit(result, func(w io.Writer) {
		for _, v := range values {
			fmt.Fprintf(w, "%s\t%s\n", v.Ref, v.Value)
		}
		fmt.Fprintf(w, "%s: %d entries reduced, %d carried (reinitialized: %v)\n",
			output, res.Reduced, res.Carried, res.Reinitialized)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
