// Command corecache is the CLI entrypoint for the symbol-aware code
// search engine: index a project, search it from the shell, run it as an
// MCP server for AI coding assistants, or keep a background daemon
// warm across invocations.
package main

import (
	"fmt"
	"os"

	"github.com/standardbeagle/corecache/cmd/corecache/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
