// Command framegraph compiles, runs and tests CUE frame graph descriptions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/framegraph/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
