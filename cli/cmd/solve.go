package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cellsolve/adapter"
	"github.com/pithecene-io/cellsolve/adapter/redis"
	"github.com/pithecene-io/cellsolve/adapter/webhook"
	"github.com/pithecene-io/cellsolve/cli/config"
	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/iox"
	"github.com/pithecene-io/cellsolve/log"
	"github.com/pithecene-io/cellsolve/metrics"
	"github.com/pithecene-io/cellsolve/search"
	"github.com/pithecene-io/cellsolve/solve"
	"github.com/pithecene-io/cellsolve/trace"
	"github.com/pithecene-io/cellsolve/types"
)

// SolveCommand returns the solve command.
// It is the only command that talks to a host. The process exit code is
// the host result code.
func SolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "solve",
		Usage: "Run one optimisation against a spreadsheet host",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to cellsolve.yaml (flags override its values)",
			},
			// Host flags
			&cli.StringFlag{
				Name:  "host-mode",
				Usage: "Host transport: stdio (host launched us) or process (launch --host-cmd)",
				Value: config.HostModeStdio,
			},
			&cli.StringFlag{
				Name:  "host-cmd",
				Usage: "Host executable for process mode",
			},
			&cli.StringSliceFlag{
				Name:  "host-arg",
				Usage: "Argument passed to the host executable (repeatable)",
			},
			&cli.StringFlag{
				Name:  "macro-prefix",
				Usage: "Prefix for every host procedure name (e.g. OpenSolver.NOMAD_)",
			},
			&cli.BoolFlag{
				Name:  "load-result",
				Usage: "Push the final result code to the host",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (generated when empty)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			// Trace flags
			&cli.StringFlag{
				Name:  "trace-backend",
				Usage: "Trace storage backend: none, fs or s3",
				Value: config.TraceBackendNone,
			},
			&cli.StringFlag{
				Name:  "trace-path",
				Usage: "Trace storage path (fs: directory, s3: bucket/prefix)",
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
			&cli.IntFlag{
				Name:  "trace-flush-count",
				Usage: "Trace records buffered per write",
				Value: trace.DefaultFlushCount,
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook endpoint or redis:// URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as Key=Value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-attempt adapter timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
				Value: webhook.DefaultRetries,
			},
			&cli.StringFlag{
				Name:    "adapter-secret",
				Usage:   "HMAC secret for webhook signatures",
				EnvVars: []string{"CELLSOLVE_WEBHOOK_SECRET"},
			},
			&cli.StringFlag{
				Name:  "adapter-key-prefix",
				Usage: "Also store each redis event under <prefix><run_id>",
			},
		},
		Action: solveAction,
	}
}

// solveSettings is the merged result of the config file and flags.
type solveSettings struct {
	config.Config
	runID string
	quiet bool
}

func solveAction(c *cli.Context) error {
	settings, err := resolveSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), int(types.ResultErrorOccurred))
	}
	level, err := log.ParseLevel(settings.Log.Level)
	if err != nil {
		return cli.Exit(err.Error(), int(types.ResultErrorOccurred))
	}

	runMeta := &types.RunMeta{
		RunID: settings.runID,
		Host:  hostLabel(settings.Host),
	}
	if err := runMeta.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid run id: %v", err), int(types.ResultErrorOccurred))
	}
	logger := log.NewLogger(runMeta)
	logger.SetLevel(level)

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	collector := metrics.NewCollector(runMeta.Host, backendLabel(settings.Trace.Backend), runMeta.RunID)

	traceClient, err := buildTraceClient(ctx, settings.Trace, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("trace setup failed: %v", err), int(types.ResultErrorOccurred))
	}
	notifier, err := buildAdapter(settings.Adapter)
	if err != nil {
		_ = iox.CloseAll(traceClient)
		return cli.Exit(fmt.Sprintf("adapter setup failed: %v", err), int(types.ResultErrorOccurred))
	}

	h, err := openHost(ctx, settings.Host, runMeta)
	if err != nil {
		_ = iox.CloseAll(traceClient, notifier)
		return cli.Exit(fmt.Sprintf("host setup failed: %v", err), int(types.ResultErrorOccurred))
	}

	outcome, err := runSolve(ctx, solve.Config{
		RunMeta:         runMeta,
		MacroPrefix:     settings.Host.MacroPrefix,
		LoadResult:      settings.Host.LoadResult,
		Logger:          logger,
		Collector:       collector,
		Trace:           traceClient,
		TracePath:       settings.Trace.Path,
		TraceFlushCount: settings.Trace.FlushCount,
		Adapter:         notifier,
	}, h)

	if closeErr := iox.CloseAll(h, traceClient, notifier); closeErr != nil {
		logger.Warn("cleanup failed", map[string]any{"error": closeErr.Error()})
	}
	_ = logger.Sync()

	if err != nil {
		return cli.Exit(fmt.Sprintf("solve failed: %v", err), int(types.ResultErrorOccurred))
	}

	if !settings.quiet {
		printSolveResult(c.App.ErrWriter, outcome)
	}

	return cli.Exit("", int(outcome.Result))
}

// runSolve executes one run against an open host.
func runSolve(ctx context.Context, cfg solve.Config, h host.Host) (*solve.Outcome, error) {
	orchestrator, err := solve.NewOrchestrator(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orchestrator.Execute(ctx, h)
}

// resolveSettings loads --config when given and lays explicitly set flags
// over it. Flag defaults apply only where the file is silent.
func resolveSettings(c *cli.Context) (*solveSettings, error) {
	var cfg config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	cfg.Host.Mode = stringSetting(c, "host-mode", cfg.Host.Mode)
	cfg.Host.Command = stringSetting(c, "host-cmd", cfg.Host.Command)
	if c.IsSet("host-arg") {
		cfg.Host.Args = c.StringSlice("host-arg")
	}
	cfg.Host.MacroPrefix = stringSetting(c, "macro-prefix", cfg.Host.MacroPrefix)
	cfg.Host.LoadResult = boolSetting(c, "load-result", cfg.Host.LoadResult)
	cfg.Log.Level = stringSetting(c, "log-level", cfg.Log.Level)

	cfg.Trace.Backend = stringSetting(c, "trace-backend", cfg.Trace.Backend)
	cfg.Trace.Path = stringSetting(c, "trace-path", cfg.Trace.Path)
	cfg.Trace.Region = stringSetting(c, "trace-s3-region", cfg.Trace.Region)
	cfg.Trace.Endpoint = stringSetting(c, "trace-s3-endpoint", cfg.Trace.Endpoint)
	cfg.Trace.S3PathStyle = boolSetting(c, "trace-s3-path-style", cfg.Trace.S3PathStyle)
	if c.IsSet("trace-flush-count") || cfg.Trace.FlushCount == 0 {
		cfg.Trace.FlushCount = c.Int("trace-flush-count")
	}

	cfg.Adapter.Type = stringSetting(c, "adapter", cfg.Adapter.Type)
	cfg.Adapter.URL = stringSetting(c, "adapter-url", cfg.Adapter.URL)
	cfg.Adapter.Channel = stringSetting(c, "adapter-channel", cfg.Adapter.Channel)
	cfg.Adapter.Secret = stringSetting(c, "adapter-secret", cfg.Adapter.Secret)
	cfg.Adapter.KeyPrefix = stringSetting(c, "adapter-key-prefix", cfg.Adapter.KeyPrefix)
	if c.IsSet("adapter-timeout") {
		cfg.Adapter.Timeout = config.Duration{Duration: c.Duration("adapter-timeout")}
	}
	if c.IsSet("adapter-retries") || cfg.Adapter.Retries == nil {
		retries := c.Int("adapter-retries")
		cfg.Adapter.Retries = &retries
	}
	if c.IsSet("adapter-header") {
		headers, err := parseHeaders(c.StringSlice("adapter-header"))
		if err != nil {
			return nil, err
		}
		if cfg.Adapter.Headers == nil {
			cfg.Adapter.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Adapter.Headers[k] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSettings(&cfg); err != nil {
		return nil, err
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.New().String()
	}
	return &solveSettings{Config: cfg, runID: runID, quiet: c.Bool("quiet")}, nil
}

// validateSettings checks cross-field requirements that only hold once
// flags and file are merged.
func validateSettings(cfg *config.Config) error {
	var errs []error
	switch cfg.Trace.Backend {
	case config.TraceBackendFS, config.TraceBackendS3:
		if cfg.Trace.Path == "" {
			errs = append(errs, fmt.Errorf("--trace-path is required for the %s backend", cfg.Trace.Backend))
		}
	}
	if cfg.Adapter.Type != "" && cfg.Adapter.URL == "" {
		errs = append(errs, fmt.Errorf("--adapter-url is required for the %s adapter", cfg.Adapter.Type))
	}
	return errors.Join(errs...)
}

func stringSetting(c *cli.Context, name, fromConfig string) string {
	if c.IsSet(name) || fromConfig == "" {
		return c.String(name)
	}
	return fromConfig
}

func boolSetting(c *cli.Context, name string, fromConfig bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return fromConfig
}

// parseHeaders parses Key=Value pairs.
func parseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q (want Key=Value)", pair)
		}
		headers[strings.TrimSpace(k)] = v
	}
	return headers, nil
}

// hostLabel describes the host transport for logs and events.
func hostLabel(cfg config.HostConfig) string {
	if cfg.Mode == config.HostModeProcess {
		return cfg.Command
	}
	return config.HostModeStdio
}

func backendLabel(backend string) string {
	if backend == "" {
		return config.TraceBackendNone
	}
	return backend
}

// openHost connects to the host. In stdio mode the host launched us and
// owns stdin and stdout; in process mode we launch it.
func openHost(ctx context.Context, cfg config.HostConfig, runMeta *types.RunMeta) (host.Host, error) {
	switch cfg.Mode {
	case "", config.HostModeStdio:
		return host.NewClient(os.Stdin, os.Stdout), nil
	case config.HostModeProcess:
		p, err := host.StartProcess(ctx, &host.ProcessConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			RunMeta: runMeta,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown host mode %q", cfg.Mode)
	}
}

// buildTraceClient returns nil when tracing is disabled.
func buildTraceClient(ctx context.Context, cfg config.TraceConfig, collector *metrics.Collector) (trace.Client, error) {
	var client *trace.LodeClient
	var err error
	switch cfg.Backend {
	case "", config.TraceBackendNone:
		return nil, nil
	case config.TraceBackendFS:
		client, err = trace.NewFSClient(cfg.Path)
	case config.TraceBackendS3:
		bucket, prefix := trace.ParseS3Path(cfg.Path)
		client, err = trace.NewS3Client(ctx, trace.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown trace backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return trace.NewInstrumentedClient(client, collector), nil
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := webhook.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
			Secret:  cfg.Secret,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:       cfg.URL,
			Channel:   cfg.Channel,
			Timeout:   cfg.Timeout.Duration,
			Retries:   retries,
			KeyPrefix: cfg.KeyPrefix,
			KeyTTL:    cfg.KeyTTL.Duration,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

func printSolveResult(w io.Writer, out *solve.Outcome) {
	fmt.Fprintf(w, "\nrun_id=%s, result=%s (%d), duration=%s\n",
		out.RunID,
		out.Result,
		int(out.Result),
		out.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Solve Result ===\n")
	fmt.Fprintf(w, "Run ID:       %s\n", out.RunID)
	fmt.Fprintf(w, "Result:       %s\n", out.Result)
	if out.Code != 0 {
		fmt.Fprintf(w, "Code:         %d\n", int(out.Code))
	}
	if out.Message != "" {
		fmt.Fprintf(w, "Message:      %s\n", out.Message)
	}
	if out.StopReason != search.StopNone {
		fmt.Fprintf(w, "Stop Reason:  %s\n", out.StopReason)
	}
	if out.LogPath != "" {
		fmt.Fprintf(w, "Log File:     %s\n", out.LogPath)
	}

	if out.Best != nil {
		fmt.Fprintf(w, "\n=== Best Point ===\n")
		fmt.Fprintf(w, "Feasible:     %t\n", out.Feasible)
		if !math.IsNaN(out.Best.F) && !math.IsInf(out.Best.F, 0) {
			fmt.Fprintf(w, "Objective:    %g\n", out.Best.F)
		}
		fmt.Fprintf(w, "X:            %v\n", out.Best.X)
	}

	fmt.Fprintf(w, "\n=== Search Stats ===\n")
	fmt.Fprintf(w, "Evaluations:  %d\n", out.Stats.Evaluations)
	fmt.Fprintf(w, "Cache Hits:   %d\n", out.Stats.CacheHits)
	fmt.Fprintf(w, "Iterations:   %d\n", out.Stats.Iterations)
	fmt.Fprintf(w, "Final Mesh:   %g\n", out.Stats.FinalMesh)

	if out.Trace.Written > 0 || out.Trace.Dropped > 0 {
		fmt.Fprintf(w, "\n=== Trace ===\n")
		fmt.Fprintf(w, "Written:      %d\n", out.Trace.Written)
		fmt.Fprintf(w, "Dropped:      %d\n", out.Trace.Dropped)
	}

	fmt.Fprintf(w, "\n=== Host Calls ===\n")
	fmt.Fprintf(w, "Calls:        %d\n", out.Metrics.HostCalls)
	fmt.Fprintf(w, "Failures:     %d\n", out.Metrics.HostLogicFailures+out.Metrics.TransportFailures)
	fmt.Fprintf(w, "NaN Cells:    %d\n", out.Metrics.NaNCells)
}
