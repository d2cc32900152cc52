// Package main provides the cellsolve CLI entrypoint.
//
// The spreadsheet add-in launches `cellsolve solve` and reads the process
// exit code as the solve result. All other commands are read-only.
//
// Usage:
//
//	cellsolve <command> [subcommand] [options]
//
// Exit codes for `solve` are the host result codes:
//   - -12: log file error
//   - -3: user cancelled
//   - 0: optimal
//   - 1: error occurred
//   - 2 / 10: stopped on evaluation or iteration limit (10: no feasible point)
//   - 3 / 11: stopped on time limit (11: no feasible point)
//   - 4: infeasible
//
// Negative codes reach a POSIX parent modulo 256 (-3 is 253, -12 is 244).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cellsolve/cli/cmd"
	"github.com/pithecene-io/cellsolve/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "cellsolve",
		Usage:          "Spreadsheet evaluation bridge for pattern search",
		Version:        fmt.Sprintf("%s (search %s, commit: %s)", types.Version, types.SearchVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.SolveCommand(),
			cmd.TraceCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(int(types.ResultErrorOccurred))
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
// This carries the solve result code to the invoking host.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// Only print if there's a real message (not just "exit status N")
		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(int(types.ResultErrorOccurred))
}
