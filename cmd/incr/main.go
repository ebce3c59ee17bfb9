// Command incr runs conformance scenarios against the incremental
// collection engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/incr/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
