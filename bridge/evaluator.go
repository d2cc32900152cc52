package bridge

import (
	"context"
	"math"
	"time"

	"github.com/pithecene-io/cellsolve/search"
	"github.com/pithecene-io/cellsolve/types"
)

// Evaluation describes one finished evaluation for observers.
type Evaluation struct {
	Seq      int
	X        []float64
	Outputs  []float64
	Code     types.Code
	NaNRows  int
	Counted  bool
	Duration time.Duration
}

// Observer is notified after every evaluation, successful or not.
type Observer func(Evaluation)

// Evaluator adapts the bridge to search.Evaluator. On any failure it
// stops the search through the controller it was built with, so no bad
// value reaches the search state.
type Evaluator struct {
	bridge   *Bridge
	ctl      search.Controller
	numCons  int
	observer Observer
	seq      int
	now      func() time.Time
}

var _ search.Evaluator = (*Evaluator)(nil)

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithObserver registers an observer.
func WithObserver(o Observer) EvaluatorOption {
	return func(e *Evaluator) { e.observer = o }
}

// NewEvaluator creates an evaluator reading numCons rows per point.
func NewEvaluator(b *Bridge, ctl search.Controller, numCons int, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{bridge: b, ctl: ctl, numCons: numCons, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate implements search.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, x []float64) ([]float64, bool, error) {
	e.seq++
	start := e.now()

	req := Request{X: x}
	if best := e.ctl.BestFeasible(); best != nil {
		req.Best, req.Feasible = &best.F, true
	} else if best := e.ctl.BestInfeasible(); best != nil {
		req.Best = &best.F
	}

	values, err := e.bridge.Evaluate(ctx, req, e.numCons)
	counted := err == nil
	if err != nil {
		e.bridge.metrics.IncEvaluationsFailed()
		e.bridge.logger.Warn("evaluation failed, stopping search", map[string]any{
			"seq":   e.seq,
			"code":  int(types.CodeOf(err)),
			"error": err.Error(),
		})
		e.ctl.Stop(err)
	} else {
		e.bridge.metrics.IncEvaluations()
	}

	if e.observer != nil {
		nan := 0
		for _, v := range values {
			if math.IsNaN(v) {
				nan++
			}
		}
		e.observer(Evaluation{
			Seq:      e.seq,
			X:        append([]float64(nil), x...),
			Outputs:  values,
			Code:     types.CodeOf(err),
			NaNRows:  nan,
			Counted:  counted,
			Duration: e.now().Sub(start),
		})
	}

	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}
