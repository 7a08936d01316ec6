// Command bitstream merges multi-writer logs into a deterministic order.
package main

import (
	"fmt"
	"os"

	"github.com/bitwebs/bitstream/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
