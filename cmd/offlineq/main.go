// Command offlineq inspects and drives the offline mutation queue.
package main

import (
	"os"

	"github.com/roach88/offlineq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
