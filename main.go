// compdef - OSCAL component definitions from a spreadsheet of record
package main

import (
	cmd "github.com/sigcomply/compdef-cli/cmd/compdef"
)

// Set via ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildTime)
	cmd.Execute()
}
