// Package main is the entry point for the breathsense CLI.
//
// Usage:
//
//	breathsense [flags] <command> [subcommand] [args]
//
// Commands:
//
//	config     - Configuration management (contexts, services)
//	run        - Run live breathing detection on an audio source
//	sessions   - Inspect, export and purge recorded sessions
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/lumora-health/breathsense/cmd/breathsense/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
