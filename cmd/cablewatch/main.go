// cablewatch captures a live broadcast stream into a segment archive and
// offers offline tooling over it: timelines, speech extraction and banner
// frame extraction.
package main

import (
	"os"

	"github.com/cablewatch/cablewatch/cmd/cablewatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
