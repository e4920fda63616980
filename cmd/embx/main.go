package main

import (
	"os"

	"github.com/embx-dev/embx/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
