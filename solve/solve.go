// Package solve runs one optimisation against a spreadsheet host.
//
// The orchestrator asks the host for its log destination and problem,
// runs the pattern search with the bridge as evaluator, pushes the best
// point back into the workbook and classifies the run into the host's
// result enumeration. Trace storage and completion notification are best
// effort: their failures are logged and never change the result.
package solve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/cellsolve/adapter"
	"github.com/pithecene-io/cellsolve/bridge"
	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/iox"
	"github.com/pithecene-io/cellsolve/log"
	"github.com/pithecene-io/cellsolve/metrics"
	"github.com/pithecene-io/cellsolve/search"
	"github.com/pithecene-io/cellsolve/trace"
	"github.com/pithecene-io/cellsolve/types"
)

// finalizeTimeout bounds the trace flush and adapter publish after a run.
const finalizeTimeout = 30 * time.Second

// Config configures a solve run.
type Config struct {
	// RunMeta identifies the run. A missing RunID is generated.
	RunMeta *types.RunMeta
	// MacroPrefix prefixes every host procedure name.
	MacroPrefix string
	// LoadResult pushes the final result code to the host.
	LoadResult bool
	// Logger is the base logger. Nil creates a stderr logger for RunMeta.
	Logger *log.Logger
	// Collector receives run metrics. Nil is valid.
	Collector *metrics.Collector
	// Trace receives evaluation and summary records. Nil disables tracing.
	Trace trace.Client
	// TracePath is reported in the completion event.
	TracePath string
	// TraceFlushCount overrides the trace batch size.
	TraceFlushCount int
	// Adapter is notified when the run ends. Nil disables notification.
	Adapter adapter.Adapter
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Outcome is the classified result of a run.
type Outcome struct {
	RunID  string
	Result types.Result
	// Code is the protocol code of the failure that ended the run, or 0.
	Code    types.Code
	Message string
	// LogPath is the host-supplied log destination.
	LogPath    string
	StopReason search.StopReason
	// Best is the point pushed back to the host, nil if none was found.
	Best     *search.EvalPoint
	Feasible bool
	Stats    search.Stats
	Trace    trace.Stats
	Metrics  metrics.Snapshot
	Duration time.Duration
}

// Orchestrator drives one solve run.
type Orchestrator struct {
	config    Config
	logger    *log.Logger
	recorder  *trace.Recorder
	now       func() time.Time
	startTime time.Time
}

// NewOrchestrator validates the configuration and prepares a run.
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if config.RunMeta == nil {
		config.RunMeta = &types.RunMeta{}
	}
	if config.RunMeta.RunID == "" {
		meta := *config.RunMeta
		meta.RunID = uuid.New().String()
		config.RunMeta = &meta
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}

	return &Orchestrator{
		config: config,
		logger: logger,
		now:    config.Now,
	}, nil
}

// RunID returns the run identifier, generated if none was configured.
func (o *Orchestrator) RunID() string { return o.config.RunMeta.RunID }

// Execute runs the solve against h. The returned error is non-nil only
// when the orchestrator itself could not run; host and search failures
// are reported through Outcome.Result.
func (o *Orchestrator) Execute(ctx context.Context, h host.Host) (*Outcome, error) {
	if h == nil {
		return nil, errors.New("host is nil")
	}
	o.startTime = o.now()
	o.config.Collector.IncRunStarted()

	b := bridge.New(h,
		bridge.WithMacroPrefix(o.config.MacroPrefix),
		bridge.WithLogger(o.logger),
		bridge.WithCollector(o.config.Collector),
	)

	o.logger.Info("solve started", map[string]any{
		"macro_prefix": o.config.MacroPrefix,
		"load_result":  o.config.LoadResult,
	})

	logPath, err := b.LogFilePath(ctx)
	if err != nil {
		o.logger.Error("log file path unavailable", map[string]any{"error": err.Error()})
		return o.finish(ctx, b, &Outcome{
			Result:  types.ResultLogFileError,
			Code:    protocolCode(err),
			Message: err.Error(),
		}), nil
	}
	runLogger, logFile, err := o.logger.WithFile(logPath)
	if err != nil {
		o.logger.Error("log file unusable", map[string]any{
			"path":  logPath,
			"error": err.Error(),
		})
		return o.finish(ctx, b, &Outcome{
			Result:  types.ResultLogFileError,
			LogPath: logPath,
			Message: err.Error(),
		}), nil
	}
	defer iox.DiscardClose(logFile)
	o.logger = runLogger
	b.SetLogger(runLogger)

	if o.config.Trace != nil {
		o.recorder = trace.NewRecorder(o.config.Trace, trace.Config{
			RunID:      o.config.RunMeta.RunID,
			Host:       o.config.RunMeta.Host,
			Start:      o.startTime,
			FlushCount: o.config.TraceFlushCount,
		}, trace.WithLogger(o.logger), trace.WithClock(o.now))
	}

	problem, params, err := o.load(ctx, b)
	if err != nil {
		o.logger.Error("problem load failed", map[string]any{"error": err.Error()})
		return o.finish(ctx, b, &Outcome{
			Result:  types.ResultErrorOccurred,
			Code:    protocolCode(err),
			LogPath: logPath,
			Message: err.Error(),
		}), nil
	}

	driver, err := search.NewDriver(problem, params,
		search.WithLogger(o.logger),
		search.WithClock(o.now),
	)
	if err != nil {
		o.logger.Error("invalid problem", map[string]any{"error": err.Error()})
		return o.finish(ctx, b, &Outcome{
			Result:  types.ResultErrorOccurred,
			LogPath: logPath,
			Message: err.Error(),
		}), nil
	}

	var evOpts []bridge.EvaluatorOption
	if o.recorder != nil {
		evOpts = append(evOpts, bridge.WithObserver(o.recorder.Observer(ctx)))
	}
	ev := bridge.NewEvaluator(b, driver, problem.NumCons, evOpts...)
	res := driver.Run(ctx, ev)

	outcome := classify(res)
	outcome.LogPath = logPath
	o.pushBest(ctx, b, outcome)
	return o.finish(ctx, b, outcome), nil
}

// load reads the problem definition and solver options from the host.
func (o *Orchestrator) load(ctx context.Context, b *bridge.Bridge) (search.Problem, search.Params, error) {
	n, err := b.NumVariables(ctx)
	if err != nil {
		return search.Problem{}, search.Params{}, err
	}
	if n < 1 {
		return search.Problem{}, search.Params{}, errors.New("no variables returned")
	}
	vars, err := b.VariableData(ctx, n)
	if err != nil {
		return search.Problem{}, search.Params{}, err
	}
	dims, err := b.Dimensions(ctx)
	if err != nil {
		return search.Problem{}, search.Params{}, err
	}
	lines, err := b.OptionData(ctx)
	if err != nil {
		return search.Problem{}, search.Params{}, err
	}
	params, err := search.ParseOptions(lines)
	if err != nil {
		return search.Problem{}, search.Params{}, fmt.Errorf("invalid solver options: %w", err)
	}

	o.logger.Info("problem loaded", map[string]any{
		"variables":   n,
		"rows":        dims.NumCons,
		"objectives":  dims.NumObjs,
		"options":     len(lines),
		"max_bb_eval": params.MaxBBEval,
	})

	return search.Problem{
		Lower:   vars.Lower,
		Upper:   vars.Upper,
		Start:   vars.Start,
		Types:   vars.Types,
		NumCons: dims.NumCons,
		NumObjs: dims.NumObjs,
	}, params, nil
}

// classify maps a search result onto the host's result enumeration.
func classify(res *search.Result) *Outcome {
	out := &Outcome{
		StopReason: res.Reason,
		Stats:      res.Stats,
		Best:       res.BestFeasible,
		Feasible:   res.BestFeasible != nil,
	}
	if out.Best == nil {
		out.Best = res.BestInfeasible
	}

	switch res.Reason {
	case search.StopForced:
		out.Code = protocolCode(res.Cause)
		if res.Cause != nil {
			out.Message = res.Cause.Error()
		}
		switch {
		case types.IsUserAbort(res.Cause), errors.Is(res.Cause, context.Canceled):
			out.Result = types.ResultUserCancelled
		default:
			out.Result = types.ResultErrorOccurred
		}
	case search.StopMaxTime:
		out.Result = types.ResultStoppedTime
		if !out.Feasible {
			out.Result = types.ResultStoppedTimeInfeasible
		}
	case search.StopMaxEvals, search.StopMaxIterations:
		out.Result = types.ResultStoppedIter
		if !out.Feasible {
			out.Result = types.ResultStoppedIterInfeasible
		}
	default:
		out.Result = types.ResultOptimal
		if !out.Feasible {
			out.Result = types.ResultInfeasible
		}
	}
	if out.Message == "" {
		out.Message = res.Reason.String()
	}
	return out
}

// pushBest writes the best point found back into the workbook. A failure
// here is logged; the run result stands.
func (o *Orchestrator) pushBest(ctx context.Context, b *bridge.Bridge, out *Outcome) {
	if out.Best == nil {
		return
	}
	f := out.Best.F
	if err := b.UpdateVars(ctx, out.Best.X, &f, out.Feasible); err != nil {
		o.logger.Warn("failed to push best point", map[string]any{
			"code":  int(types.CodeOf(err)),
			"error": err.Error(),
		})
	}
}

// finish records run metrics, pushes the result code, writes the trace
// summary and publishes the completion event.
func (o *Orchestrator) finish(ctx context.Context, b *bridge.Bridge, out *Outcome) *Outcome {
	out.RunID = o.config.RunMeta.RunID
	out.Duration = o.now().Sub(o.startTime)

	if out.Result == types.ResultErrorOccurred || out.Result == types.ResultLogFileError {
		o.config.Collector.IncRunFailed()
	} else {
		o.config.Collector.IncRunCompleted()
	}

	if o.config.LoadResult && out.Result != types.ResultLogFileError {
		if err := b.LoadResult(ctx, out.Result); err != nil {
			o.logger.Warn("failed to load result into host", map[string]any{
				"result": int(out.Result),
				"error":  err.Error(),
			})
		}
	}

	// Use WithoutCancel so a cancelled run still records its summary.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	out.Metrics = o.config.Collector.Snapshot()
	if o.recorder != nil {
		if err := o.recorder.Summarize(finalCtx, o.summary(out)); err != nil {
			o.logger.Warn("trace summary write failed (best effort)", map[string]any{
				"error": err.Error(),
			})
		}
		out.Trace = o.recorder.Stats()
	}
	o.publish(finalCtx, out)

	o.logger.Info("solve finished", map[string]any{
		"result":      int(out.Result),
		"result_name": out.Result.String(),
		"stop_reason": out.StopReason.String(),
		"evaluations": out.Stats.Evaluations,
		"duration":    out.Duration.String(),
	})
	return out
}

func (o *Orchestrator) summary(out *Outcome) trace.Summary {
	s := trace.Summary{
		Result:      out.Result,
		StopReason:  out.StopReason.String(),
		Feasible:    out.Feasible,
		Evaluations: out.Stats.Evaluations,
		CacheHits:   out.Stats.CacheHits,
		Iterations:  out.Stats.Iterations,
		FinalMesh:   out.Stats.FinalMesh,
		Elapsed:     out.Duration,
		Metrics:     &out.Metrics,
	}
	if out.Code != 0 || out.Result == types.ResultErrorOccurred || out.Result == types.ResultLogFileError {
		s.Cause = errors.New(out.Message)
	}
	if out.Best != nil {
		s.BestX = out.Best.X
		s.BestF = out.Best.F
		s.HasBest = true
	}
	return s
}

func (o *Orchestrator) publish(ctx context.Context, out *Outcome) {
	if o.config.Adapter == nil {
		return
	}
	event := &adapter.SolveCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeSolveCompleted,
		RunID:           out.RunID,
		Host:            o.config.RunMeta.Host,
		Day:             trace.DeriveDay(o.startTime),
		Result:          int(out.Result),
		ResultName:      out.Result.String(),
		StopReason:      out.StopReason.String(),
		Feasible:        out.Feasible,
		Evaluations:     out.Stats.Evaluations,
		TracePath:       o.config.TracePath,
		Timestamp:       o.now().UTC().Format(time.RFC3339),
		DurationMs:      out.Duration.Milliseconds(),
	}
	if out.Best != nil {
		event.BestPoint = out.Best.X
		if f := out.Best.F; !math.IsInf(f, 0) && !math.IsNaN(f) {
			event.BestObjective = &f
		}
	}
	if err := o.config.Adapter.Publish(ctx, event); err != nil {
		o.logger.Warn("completion notification failed (best effort)", map[string]any{
			"error": err.Error(),
		})
	}
}

// protocolCode returns the code carried by a bridge error, or 0 for nil
// and for errors raised outside the host protocol.
func protocolCode(err error) types.Code {
	var e *types.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
