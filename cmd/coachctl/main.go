// Command coachctl talks to the goal coach from a terminal and exposes the
// coach tools to MCP clients over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/ashureev/goalcoach/cmd/coachctl/commands"
)

// Set by the release build.
var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
