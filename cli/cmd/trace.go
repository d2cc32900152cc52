package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cellsolve/cli/config"
	"github.com/pithecene-io/cellsolve/cli/render"
	"github.com/pithecene-io/cellsolve/cli/tui"
	"github.com/pithecene-io/cellsolve/trace"
)

// listWarningThreshold is the run count above which list warns on a
// terminal.
const listWarningThreshold = 100

// TraceCommand returns the trace command. Without a subcommand it shows
// the evaluations of one run.
func TraceCommand() *cli.Command {
	return &cli.Command{
		Name:   "trace",
		Usage:  "Read the evaluation trace of solve runs",
		Flags:  append(traceFlags(), runIDFlag()),
		Action: traceShowAction,
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show aggregated statistics for one run",
				Flags:  append(traceFlags(), runIDFlag()),
				Action: traceStatsAction,
			},
			{
				Name:   "list",
				Usage:  "List the runs in the trace store",
				Flags:  traceFlags(),
				Action: traceListAction,
			},
		},
	}
}

func traceFlags() []cli.Flag {
	return append(ReadOnlyFlags(),
		&cli.StringFlag{
			Name:     "trace-path",
			Usage:    "Trace storage path (fs: directory, s3: bucket/prefix)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "trace-backend",
			Usage: "Trace storage backend: fs or s3",
			Value: config.TraceBackendFS,
		},
		&cli.StringFlag{
			Name:  "trace-s3-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "trace-s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "trace-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	)
}

func runIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "run-id",
		Usage: "Run ID (defaults to the most recent run)",
	}
}

// RunEntry is one row of trace list output.
type RunEntry struct {
	RunID string `json:"run_id"`
}

func traceShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	run, err := loadRun(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectTrace, run)
	}
	// A table cannot nest the evaluations under the run header, so it
	// shows the evaluation rows alone.
	if r.Format() == render.FormatTable {
		return r.Render(run.Evaluations)
	}
	return r.Render(run)
}

func traceStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	run, err := loadRun(c)
	if err != nil {
		return err
	}
	stats := run.Stats()

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsTrace, &stats)
	}
	return r.Render(stats)
}

func traceListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for trace list", 1)
	}

	ds, err := openTraceDataset(c)
	if err != nil {
		return err
	}
	ids, err := trace.ListRuns(c.Context, ds)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(ids) > listWarningThreshold && isStderrTTY() {
		fmt.Fprintf(c.App.ErrWriter, "Warning: %d runs in trace store\n", len(ids))
	}

	entries := make([]RunEntry, len(ids))
	for i, id := range ids {
		entries[i] = RunEntry{RunID: id}
	}
	return r.Render(entries)
}

func loadRun(c *cli.Context) (*trace.Run, error) {
	ds, err := openTraceDataset(c)
	if err != nil {
		return nil, err
	}
	run, err := trace.QueryRun(c.Context, ds, c.String("run-id"))
	if errors.Is(err, trace.ErrNoRecords) || errors.Is(err, trace.ErrNotFound) {
		return nil, cli.Exit(fmt.Sprintf("no trace found in %s", c.String("trace-path")), 1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return run, nil
}

func openTraceDataset(c *cli.Context) (lode.Dataset, error) {
	factory, err := traceFactory(c.Context, c.String("trace-backend"), c.String("trace-path"), trace.S3Config{
		Region:       c.String("trace-s3-region"),
		Endpoint:     c.String("trace-s3-endpoint"),
		UsePathStyle: c.Bool("trace-s3-path-style"),
	})
	if err != nil {
		return nil, err
	}
	return trace.OpenDataset(factory)
}

// traceFactory selects the store for a trace path. s3 fills the bucket
// and prefix of s3cfg from path.
func traceFactory(ctx context.Context, backend, path string, s3cfg trace.S3Config) (lode.StoreFactory, error) {
	switch backend {
	case "", config.TraceBackendFS:
		return lode.NewFSFactory(path), nil
	case config.TraceBackendS3:
		s3cfg.Bucket, s3cfg.Prefix = trace.ParseS3Path(path)
		return trace.NewS3Factory(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unknown trace backend %q (must be fs or s3)", backend)
	}
}
