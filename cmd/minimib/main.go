// Command minimib runs the agent and talks to running agents.
package main

import (
	"os"

	"github.com/roach88/minimib/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
