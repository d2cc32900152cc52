package bridge

import (
	"context"
	"math"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/types"
)

// Host procedure names, before the macro prefix is applied.
const (
	ProcGetLogFilePath    = "GetLogFilePath"
	ProcGetNumConstraints = "GetNumConstraints"
	ProcGetNumVariables   = "GetNumVariables"
	ProcGetVariableData   = "GetVariableData"
	ProcGetOptionData     = "GetOptionData"
	ProcUpdateVars        = "UpdateVars"
	ProcRecalculateValues = "RecalculateValues"
	ProcGetValues         = "GetValues"
	ProcShowCancelDialog  = "ShowCancelDialog"
	ProcGetConfirmedAbort = "GetConfirmedAbort"
	ProcLoadResult        = "LoadResult"
)

// InfinityBound is the magnitude at or beyond which a host bound means
// "unbounded".
const InfinityBound = 1e10

// Dimensions are the row counts reported by the host. The first NumObjs
// of the NumCons rows are objectives; the rest are constraints.
type Dimensions struct {
	NumCons int
	NumObjs int
}

// Variables describes the decision variables.
type Variables struct {
	Lower []float64
	Upper []float64
	Start []float64
	Types []types.VarType
}

// Len returns the variable count.
func (v *Variables) Len() int { return len(v.Start) }

// LogFilePath asks the host where the run log goes.
func (b *Bridge) LogFilePath(ctx context.Context) (string, error) {
	var path string
	err := b.invoke(ctx, types.LocationGetLogFilePath, ProcGetLogFilePath, false, nil, func(v types.Variant) error {
		pair, err := elements(v, 2)
		if err != nil {
			return err
		}
		path, err = text(pair[0], pair[1])
		return err
	})
	return path, err
}

// Dimensions reads the constraint and objective row counts.
func (b *Bridge) Dimensions(ctx context.Context) (Dimensions, error) {
	var dims Dimensions
	err := b.invoke(ctx, types.LocationGetNumConstraints, ProcGetNumConstraints, false, nil, func(v types.Variant) error {
		pair, err := elements(v, 2)
		if err != nil {
			return err
		}
		numCons, err := count(pair[0])
		if err != nil {
			return err
		}
		numObjs, err := count(pair[1])
		if err != nil {
			return err
		}
		if numObjs > numCons {
			return shapeErrorf("%d objectives exceed %d rows", numObjs, numCons)
		}
		dims = Dimensions{NumCons: numCons, NumObjs: numObjs}
		return nil
	})
	return dims, err
}

// NumVariables reads the decision variable count.
func (b *Bridge) NumVariables(ctx context.Context) (int, error) {
	var n int
	err := b.invoke(ctx, types.LocationGetNumVariables, ProcGetNumVariables, false, nil, func(v types.Variant) error {
		var err error
		n, err = count(v)
		return err
	})
	return n, err
}

// VariableData reads bounds, start point and types for n variables. The
// host returns 4n numbers: lower, upper, start and type blocks. Bounds at
// or beyond InfinityBound become infinite. Nothing is returned unless all
// 4n elements validate.
func (b *Bridge) VariableData(ctx context.Context, n int) (*Variables, error) {
	var vars *Variables
	err := b.invoke(ctx, types.LocationGetVariableData, ProcGetVariableData, false, nil, func(v types.Variant) error {
		elems, err := elements(v, 4*n)
		if err != nil {
			return err
		}
		nums := make([]float64, len(elems))
		for i, e := range elems {
			if nums[i], err = number(e); err != nil {
				return shapeErrorf("element %d: %v", i, err)
			}
		}

		out := &Variables{
			Lower: nums[0:n],
			Upper: nums[n : 2*n],
			Start: nums[2*n : 3*n],
			Types: make([]types.VarType, n),
		}
		for i := range n {
			if out.Upper[i] >= InfinityBound {
				out.Upper[i] = math.Inf(1)
			}
			if out.Lower[i] <= -InfinityBound {
				out.Lower[i] = math.Inf(-1)
			}
			t := nums[3*n+i]
			vt := types.VarType(int(t))
			if t != math.Trunc(t) || !vt.Valid() {
				return shapeErrorf("variable %d: unknown type %v", i, t)
			}
			out.Types[i] = vt
		}
		vars = out
		return nil
	})
	return vars, err
}

// OptionData reads the solver option lines. The host returns an m x 2
// array of (string, length) rows, or Missing when there are none. Any bad
// row rejects the whole result.
func (b *Bridge) OptionData(ctx context.Context) ([]string, error) {
	var lines []string
	err := b.invoke(ctx, types.LocationGetOptionData, ProcGetOptionData, false, nil, func(v types.Variant) error {
		if v.Kind == types.KindMissing || (v.IsArray() && len(v.Elems) == 0) {
			return nil
		}
		if !v.IsArray() || v.Cols != 2 {
			return shapeErrorf("want m x 2 array, got %s", v.Kind)
		}
		out := make([]string, v.Rows)
		for r := range v.Rows {
			s, err := text(v.At(r, 0), v.At(r, 1))
			if err != nil {
				return shapeErrorf("row %d: %v", r, err)
			}
			out[r] = s
		}
		lines = out
		return nil
	})
	return lines, err
}

// UpdateVars pushes x into the host. best is the best objective found so
// far (nil when none) and feasible says whether it is feasible; both are
// for display only. The host receives the infeasible flag.
func (b *Bridge) UpdateVars(ctx context.Context, x []float64, best *float64, feasible bool) error {
	bestArg := types.Missing()
	if best != nil {
		bestArg = types.Number(*best)
	}
	args := []types.Variant{types.Column(x), bestArg, types.Bool(!feasible)}
	return b.invoke(ctx, types.LocationUpdateVars, ProcUpdateVars, false, args, ack)
}

// Recalculate forces the host to recompute.
func (b *Bridge) Recalculate(ctx context.Context) error {
	return b.invoke(ctx, types.LocationRecalculateValues, ProcRecalculateValues, false, nil, ack)
}

// Values reads exactly numCons result rows. Rows the host reports as
// anything other than a number become NaN.
func (b *Bridge) Values(ctx context.Context, numCons int) ([]float64, error) {
	var out []float64
	err := b.invoke(ctx, types.LocationGetConstraintValues, ProcGetValues, false, nil, func(v types.Variant) error {
		elems, err := elements(v, numCons)
		if err != nil {
			return err
		}
		vals := make([]float64, numCons)
		nan := 0
		for i, e := range elems {
			if e.IsNumber() {
				vals[i] = e.Num
				continue
			}
			vals[i] = math.NaN()
			nan++
		}
		if nan > 0 {
			b.metrics.AddNaNCells(nan)
			b.logger.Debug("result rows replaced with NaN", map[string]any{"rows": nan})
		}
		out = vals
		return nil
	})
	return out, err
}

// ShowCancelDialog asks the user to confirm an abort. It returns true when
// the user confirmed. Hosts that only acknowledge with 0 report their
// answer through GetConfirmedAbort instead.
func (b *Bridge) ShowCancelDialog(ctx context.Context) (bool, error) {
	var confirmed bool
	err := b.invoke(ctx, types.LocationShowCancelDialog, ProcShowCancelDialog, false, nil, func(v types.Variant) error {
		switch {
		case v.Kind == types.KindBool:
			confirmed = v.Bool
			return nil
		case v.IsNumber() && v.Num == 0:
			return nil
		default:
			return shapeErrorf("want bool, got %s", v)
		}
	})
	return confirmed, err
}

// ConfirmedAbort reads the host's confirmed-abort flag.
func (b *Bridge) ConfirmedAbort(ctx context.Context) (bool, error) {
	var aborted bool
	err := b.invoke(ctx, types.LocationCheckEscape, ProcGetConfirmedAbort, false, nil, func(v types.Variant) error {
		if v.Kind != types.KindBool {
			return shapeErrorf("want bool, got %s", v.Kind)
		}
		aborted = v.Bool
		return nil
	})
	return aborted, err
}

// PendingAbort polls the builtin pending-escape flag.
func (b *Bridge) PendingAbort(ctx context.Context) (bool, error) {
	var pending bool
	err := b.invoke(ctx, types.LocationCheckEscape, host.ProcAbort, true, nil, func(v types.Variant) error {
		if v.Kind != types.KindBool {
			return shapeErrorf("want bool, got %s", v.Kind)
		}
		pending = v.Bool
		return nil
	})
	return pending, err
}

// ClearPendingAbort clears the builtin pending-escape flag.
func (b *Bridge) ClearPendingAbort(ctx context.Context) error {
	return b.invoke(ctx, types.LocationCheckEscape, host.ProcAbort, true, []types.Variant{types.Bool(false)}, nil)
}

// LoadResult pushes the final result code to the host.
func (b *Bridge) LoadResult(ctx context.Context, result types.Result) error {
	args := []types.Variant{types.Number(float64(result))}
	return b.invoke(ctx, types.LocationLoadResult, ProcLoadResult, false, args, ack)
}
