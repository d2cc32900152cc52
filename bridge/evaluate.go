package bridge

import (
	"context"

	"github.com/pithecene-io/cellsolve/types"
)

// Request is one candidate point. Best and Feasible are display-only.
type Request struct {
	X []float64
	// Best is the best objective so far; nil when there is none.
	Best     *float64
	Feasible bool
}

// Evaluate runs one evaluation cycle: full cancellation check, push the
// point, recalculate, read numCons rows. Errored rows come back as NaN.
//
// When any step fails, the full check included, the light cancellation
// check runs; if the user has confirmed an abort that UserAbort replaces
// the original failure.
func (b *Bridge) Evaluate(ctx context.Context, req Request, numCons int) ([]float64, error) {
	err := b.CheckCancel(ctx, CheckFull)
	var values []float64
	if err == nil {
		values, err = b.cycle(ctx, req, numCons)
	}
	if err == nil {
		return values, nil
	}
	if types.IsUserAbort(err) {
		return nil, err
	}
	if abortErr := b.CheckCancel(ctx, CheckLight); types.IsUserAbort(abortErr) {
		b.logger.Info("evaluation failure superseded by user abort", map[string]any{
			"code": int(types.CodeOf(err)),
		})
		return nil, abortErr
	}
	return nil, err
}

func (b *Bridge) cycle(ctx context.Context, req Request, numCons int) ([]float64, error) {
	if err := b.UpdateVars(ctx, req.X, req.Best, req.Feasible); err != nil {
		return nil, err
	}
	if err := b.Recalculate(ctx); err != nil {
		return nil, err
	}
	return b.Values(ctx, numCons)
}
