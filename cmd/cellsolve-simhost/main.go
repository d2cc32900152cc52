// Package main provides the cellsolve-simhost entrypoint.
//
// cellsolve-simhost serves a simulated workbook over stdin and stdout so
// that `cellsolve solve --host-mode process` can be exercised without a
// spreadsheet:
//
//	cellsolve solve --host-mode process --host-cmd cellsolve-simhost \
//	    --host-arg --model --host-arg rosenbrock
//
// Diagnostics go to stderr; stdout carries frames only.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/log"
	"github.com/pithecene-io/cellsolve/sim"
	"github.com/pithecene-io/cellsolve/types"
)

func main() {
	app := &cli.App{
		Name:    "cellsolve-simhost",
		Usage:   "Serve a simulated workbook over stdin/stdout",
		Version: types.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "model",
				Usage:    "Workbook model: " + strings.Join(sim.Names(), ", "),
				Required: true,
			},
			&cli.IntFlag{
				Name:  "cancel-after",
				Usage: "Simulate an escape press after N recalculations (0: never)",
			},
			&cli.BoolFlag{
				Name:  "confirm-cancel",
				Usage: "Answer the cancel dialog with yes",
			},
			&cli.BoolFlag{
				Name:  "legacy-dialog",
				Usage: "Acknowledge the cancel dialog with 0 and report the answer via GetConfirmedAbort",
			},
			&cli.StringFlag{
				Name:  "macro-prefix",
				Usage: "Procedure name prefix the workbook answers to",
			},
			&cli.StringFlag{
				Name:  "log-path",
				Usage: "Path returned by GetLogFilePath",
			},
			&cli.StringFlag{
				Name:  "fail-proc",
				Usage: "Procedure that reports a host error instead of running",
			},
		},
		Action: serveAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveAction(c *cli.Context) error {
	runMeta := &types.RunMeta{RunID: os.Getenv("CELLSOLVE_RUN_ID"), Host: "simhost"}
	wb, err := newWorkbook(c, log.NewLogger(runMeta))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := host.NewServer(wb)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve failed: %w", err)
	}
	if hs := srv.Handles(); hs.Outstanding != 0 {
		fmt.Fprintf(os.Stderr, "warning: %d handles not freed\n", hs.Outstanding)
	}
	return nil
}

// newWorkbook builds the workbook selected by the flags of c.
func newWorkbook(c *cli.Context, logger *log.Logger) (*sim.Workbook, error) {
	m, ok := sim.Lookup(c.String("model"))
	if !ok {
		return nil, fmt.Errorf("unknown model %q (available: %s)", c.String("model"), strings.Join(sim.Names(), ", "))
	}
	if c.Int("cancel-after") < 0 {
		return nil, fmt.Errorf("--cancel-after must be >= 0, got %d", c.Int("cancel-after"))
	}

	opts := []sim.Option{
		sim.WithLogger(logger),
		sim.WithMacroPrefix(c.String("macro-prefix")),
		sim.WithCancelAfter(c.Int("cancel-after")),
		sim.WithConfirmCancel(c.Bool("confirm-cancel")),
	}
	if c.Bool("legacy-dialog") {
		opts = append(opts, sim.WithLegacyDialog())
	}
	if path := c.String("log-path"); path != "" {
		opts = append(opts, sim.WithLogPath(path))
	}
	if proc := c.String("fail-proc"); proc != "" {
		opts = append(opts, sim.WithFailingProc(proc))
	}
	return sim.NewWorkbook(m, opts...), nil
}
