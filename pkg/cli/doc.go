// Package cli provides terminal utilities shared by the breathsense
// command-line tools.
//
// This package includes:
//   - Output formatting (JSON, YAML, raw)
//   - Breathing-domain value formatting (durations, rates, confidence)
//   - A log writer that captures log output for TUI display
//   - A lipgloss-based frame renderer for the live monitor view
//
// Example usage:
//
//	// Output a session record
//	cli.Output(meta, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
