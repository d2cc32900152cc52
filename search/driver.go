// Package search is a mesh-based coordinate pattern search over bounded
// continuous, integer and binary variables.
//
// Constraints use an extreme barrier: a point is feasible only when every
// constraint row is <= 0 and no row is NaN. The driver is single-threaded
// and evaluates one point at a time through an Evaluator.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pithecene-io/cellsolve/log"
	"github.com/pithecene-io/cellsolve/types"
)

// Evaluator evaluates one point. counted reports whether the evaluation
// counts against MaxBBEval. A non-nil error ends the search.
type Evaluator interface {
	Evaluate(ctx context.Context, x []float64) (outputs []float64, counted bool, err error)
}

// Controller is the view of a running search handed to evaluators.
type Controller interface {
	BestFeasible() *EvalPoint
	BestInfeasible() *EvalPoint
	// Stop ends the search after the current evaluation.
	Stop(cause error)
}

// StopReason says why a search ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopMeshConverged
	StopMaxEvals
	StopMaxTime
	StopMaxIterations
	StopForced
)

// String returns the reason name.
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopMeshConverged:
		return "mesh_converged"
	case StopMaxEvals:
		return "max_bb_eval"
	case StopMaxTime:
		return "max_time"
	case StopMaxIterations:
		return "max_iterations"
	case StopForced:
		return "forced"
	default:
		return fmt.Sprintf("stop(%d)", int(r))
	}
}

// Problem is the search space and output layout.
type Problem struct {
	Lower []float64
	Upper []float64
	Start []float64
	Types []types.VarType
	// NumCons is the number of output rows; the first NumObjs are objectives.
	NumCons int
	NumObjs int
}

func (p *Problem) validate() error {
	n := len(p.Start)
	if n == 0 {
		return errors.New("search: no variables")
	}
	if len(p.Lower) != n || len(p.Upper) != n || len(p.Types) != n {
		return errors.New("search: bounds, start and types must have equal length")
	}
	if p.NumObjs < 0 || p.NumObjs > p.NumCons {
		return fmt.Errorf("search: %d objectives exceed %d rows", p.NumObjs, p.NumCons)
	}
	for i := range n {
		lo, hi := p.bounds(i)
		if lo > hi {
			return fmt.Errorf("search: variable %d has empty domain [%v, %v]", i, p.Lower[i], p.Upper[i])
		}
	}
	return nil
}

// bounds returns the effective domain of variable i after type rules.
func (p *Problem) bounds(i int) (float64, float64) {
	lo, hi := p.Lower[i], p.Upper[i]
	switch p.Types[i] {
	case types.VarBinary:
		lo, hi = math.Max(lo, 0), math.Min(hi, 1)
		return math.Ceil(lo), math.Floor(hi)
	case types.VarInteger:
		return math.Ceil(lo), math.Floor(hi)
	default:
		return lo, hi
	}
}

// Stats summarises a run.
type Stats struct {
	Evaluations int
	CacheHits   int
	Iterations  int
	FinalMesh   float64
	Elapsed     time.Duration
}

// Result is the outcome of Run.
type Result struct {
	Reason StopReason
	// Cause is the error passed to Stop for a forced stop.
	Cause          error
	BestFeasible   *EvalPoint
	BestInfeasible *EvalPoint
	Stats          Stats
}

// Driver runs the pattern search. It implements Controller.
type Driver struct {
	problem Problem
	params  Params
	logger  *log.Logger
	now     func() time.Time
	rng     *rand.Rand

	cache          map[string]*EvalPoint
	bestFeasible   *EvalPoint
	bestInfeasible *EvalPoint
	reason         StopReason
	cause          error
	started        time.Time
	stats          Stats
}

var _ Controller = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the progress logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// NewDriver validates the problem and prepares a driver.
func NewDriver(problem Problem, params Params, opts ...Option) (*Driver, error) {
	if err := problem.validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		problem: problem,
		params:  params,
		logger:  log.NewNop(),
		now:     time.Now,
		cache:   make(map[string]*EvalPoint),
	}
	for _, opt := range opts {
		opt(d)
	}
	seed := params.Seed
	if seed < 0 {
		seed = d.now().UnixNano()
	}
	d.rng = rand.New(rand.NewSource(seed))
	return d, nil
}

// BestFeasible implements Controller.
func (d *Driver) BestFeasible() *EvalPoint { return d.bestFeasible }

// BestInfeasible implements Controller.
func (d *Driver) BestInfeasible() *EvalPoint { return d.bestInfeasible }

// Stop implements Controller. The first cause wins.
func (d *Driver) Stop(cause error) {
	if d.reason != StopNone {
		return
	}
	d.reason = StopForced
	d.cause = cause
}

func (d *Driver) halt(r StopReason) {
	if d.reason == StopNone {
		d.reason = r
	}
}

// Run searches from the projected start point until a stop condition
// holds. It returns the best points found so far in every case.
func (d *Driver) Run(ctx context.Context, ev Evaluator) *Result {
	d.started = d.now()
	n := len(d.problem.Start)

	x0 := make([]float64, n)
	copy(x0, d.problem.Start)
	d.project(x0)
	scale := d.scales(x0)
	mesh := 1.0

	if d.params.DisplayDegree >= 1 {
		d.logger.Info("search started", map[string]any{
			"variables":   n,
			"rows":        d.problem.NumCons,
			"objectives":  d.problem.NumObjs,
			"max_bb_eval": d.params.MaxBBEval,
			"max_time":    d.params.MaxTime.String(),
		})
	}

	incumbent := d.evaluate(ctx, ev, x0)
	for d.reason == StopNone && incumbent != nil {
		if d.params.MaxIterations > 0 && d.stats.Iterations >= d.params.MaxIterations {
			d.halt(StopMaxIterations)
			break
		}
		if d.converged(mesh, scale) {
			d.halt(StopMeshConverged)
			break
		}
		d.stats.Iterations++

		improved := false
		for _, k := range d.rng.Perm(2 * n) {
			i := k / 2
			step := d.step(i, mesh, scale[i])
			if step == 0 {
				continue
			}
			if k%2 == 1 {
				step = -step
			}
			y := make([]float64, n)
			copy(y, incumbent.X)
			y[i] += step
			d.project(y)
			if y[i] == incumbent.X[i] {
				continue
			}

			p := d.evaluate(ctx, ev, y)
			if d.reason != StopNone {
				break
			}
			if p != nil && better(p, incumbent) {
				incumbent = p
				improved = true
				break
			}
		}

		if improved {
			mesh = math.Min(mesh*2, 1)
			if d.params.DisplayDegree >= 2 {
				d.logger.Info("incumbent improved", map[string]any{
					"iteration": d.stats.Iterations,
					"f":         incumbent.F,
					"h":         incumbent.H,
					"feasible":  incumbent.Feasible,
					"mesh":      mesh,
				})
			}
		} else {
			mesh /= 2
		}
	}

	d.stats.FinalMesh = mesh
	d.stats.Elapsed = d.now().Sub(d.started)
	result := &Result{
		Reason:         d.reason,
		Cause:          d.cause,
		BestFeasible:   d.bestFeasible,
		BestInfeasible: d.bestInfeasible,
		Stats:          d.stats,
	}
	if d.params.DisplayDegree >= 1 {
		fields := map[string]any{
			"reason":      d.reason.String(),
			"evaluations": d.stats.Evaluations,
			"iterations":  d.stats.Iterations,
			"cache_hits":  d.stats.CacheHits,
		}
		if d.bestFeasible != nil {
			fields["best_f"] = d.bestFeasible.F
		}
		d.logger.Info("search finished", fields)
	}
	return result
}

// evaluate returns the scored point at x or nil when the search stopped
// before or during the evaluation.
func (d *Driver) evaluate(ctx context.Context, ev Evaluator, x []float64) *EvalPoint {
	key := cacheKey(x)
	if p, ok := d.cache[key]; ok {
		d.stats.CacheHits++
		return p
	}

	switch {
	case ctx.Err() != nil:
		d.Stop(ctx.Err())
	case d.params.MaxBBEval > 0 && d.stats.Evaluations >= d.params.MaxBBEval:
		d.halt(StopMaxEvals)
	case d.params.MaxTime > 0 && d.now().Sub(d.started) >= d.params.MaxTime:
		d.halt(StopMaxTime)
	}
	if d.reason != StopNone {
		return nil
	}

	outputs, counted, err := ev.Evaluate(ctx, x)
	if counted {
		d.stats.Evaluations++
	}
	if err != nil {
		d.Stop(err)
		return nil
	}
	if d.reason != StopNone {
		return nil
	}
	if len(outputs) != d.problem.NumCons {
		d.Stop(fmt.Errorf("search: evaluator returned %d rows, want %d", len(outputs), d.problem.NumCons))
		return nil
	}

	p := newPoint(x, outputs, d.problem.NumObjs)
	d.cache[key] = p
	d.record(p)
	if d.params.DisplayDegree >= 3 {
		d.logger.Info("evaluation", map[string]any{
			"n":        d.stats.Evaluations,
			"x":        x,
			"f":        p.F,
			"h":        p.H,
			"feasible": p.Feasible,
		})
	}
	return p
}

func (d *Driver) record(p *EvalPoint) {
	if p.Feasible {
		if d.bestFeasible == nil || p.F < d.bestFeasible.F {
			d.bestFeasible = p
		}
		return
	}
	if d.bestInfeasible == nil || better(p, d.bestInfeasible) {
		d.bestInfeasible = p
	}
}

// scales returns the per-variable unit step at mesh size 1.
func (d *Driver) scales(x0 []float64) []float64 {
	out := make([]float64, len(x0))
	for i := range out {
		lo, hi := d.problem.bounds(i)
		switch {
		case lo == hi:
			out[i] = 0
		case d.params.InitialMeshSize > 0:
			out[i] = d.params.InitialMeshSize
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			out[i] = (hi - lo) / 10
		default:
			out[i] = math.Max(math.Abs(x0[i]), 1) / 10
		}
		if out[i] > 0 && d.problem.Types[i] != types.VarContinuous {
			out[i] = math.Max(out[i], 1)
		}
	}
	return out
}

// step returns the poll step of variable i. Integer and binary steps
// never fall below one.
func (d *Driver) step(i int, mesh, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	s := mesh * scale
	if d.problem.Types[i] != types.VarContinuous {
		return math.Max(1, math.Round(s))
	}
	return s
}

func (d *Driver) converged(mesh float64, scale []float64) bool {
	for i, s := range scale {
		if s == 0 {
			continue
		}
		// Discrete steps reach one while mesh*s is in [0.5, 1); converge
		// only after that poll failed.
		limit := d.params.MinMeshSize
		if d.problem.Types[i] != types.VarContinuous {
			limit = 0.5
		}
		if mesh*s >= limit {
			return false
		}
	}
	return true
}

// project clips x into the domain and rounds discrete variables.
func (d *Driver) project(x []float64) {
	for i := range x {
		lo, hi := d.problem.bounds(i)
		if d.problem.Types[i] != types.VarContinuous {
			x[i] = math.Round(x[i])
		}
		x[i] = math.Min(math.Max(x[i], lo), hi)
	}
}
