package bridge

import (
	"context"
	"math"
	"testing"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/host/hosttest"
	"github.com/pithecene-io/cellsolve/metrics"
	"github.com/pithecene-io/cellsolve/types"
)

func nums(vs ...float64) []types.Variant {
	out := make([]types.Variant, len(vs))
	for i, v := range vs {
		out[i] = types.Number(v)
	}
	return out
}

// wantCode fails the test unless err carries code.
func wantCode(t *testing.T, err error, o types.Outcome, l types.Location) {
	t.Helper()
	want := types.Encode(o, l)
	if got := types.CodeOf(err); got != want {
		t.Fatalf("code = %d (%v), want %d (%s)", got, err, want, want.Message())
	}
}

func assertReleased(t *testing.T, f *hosttest.Fake) {
	t.Helper()
	if leaked := f.Leaked(); len(leaked) != 0 {
		t.Errorf("leaked handles %v", leaked)
	}
	if doubled := f.DoubleFrees(); len(doubled) != 0 {
		t.Errorf("handles freed more than once %v", doubled)
	}
}

func TestBridge_LogFilePath(t *testing.T) {
	f := hosttest.New().Always(ProcGetLogFilePath, types.Row(types.String("/tmp/run.logXX"), types.Number(12)))
	b := New(f)

	path, err := b.LogFilePath(t.Context())
	if err != nil {
		t.Fatalf("LogFilePath failed: %v", err)
	}
	if path != "/tmp/run.log" {
		t.Errorf("path = %q, want /tmp/run.log", path)
	}
	assertReleased(t, f)
}

func TestBridge_LogFilePath_Sentinel(t *testing.T) {
	f := hosttest.New().Always(ProcGetLogFilePath, types.Number(-1))
	_, err := New(f).LogFilePath(t.Context())
	wantCode(t, err, types.OutcomeHostLogicFailure, types.LocationGetLogFilePath)
}

func TestBridge_Dimensions(t *testing.T) {
	tests := []struct {
		name    string
		value   types.Variant
		want    Dimensions
		wantErr bool
	}{
		{name: "valid", value: types.Row(nums(3, 1)...), want: Dimensions{NumCons: 3, NumObjs: 1}},
		{name: "no objectives", value: types.Row(nums(2, 0)...), want: Dimensions{NumCons: 2}},
		{name: "negative count", value: types.Row(nums(-2, 0)...), wantErr: true},
		{name: "fractional count", value: types.Row(nums(2.5, 1)...), wantErr: true},
		{name: "objectives exceed rows", value: types.Row(nums(1, 2)...), wantErr: true},
		{name: "scalar", value: types.Number(3), wantErr: true},
		{name: "three elements", value: types.Row(nums(3, 1, 0)...), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := hosttest.New().Always(ProcGetNumConstraints, tt.value)
			got, err := New(f).Dimensions(t.Context())
			if tt.wantErr {
				wantCode(t, err, types.OutcomeInvalidShape, types.LocationGetNumConstraints)
				return
			}
			if err != nil {
				t.Fatalf("Dimensions failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Dimensions() = %+v, want %+v", got, tt.want)
			}
			assertReleased(t, f)
		})
	}
}

func TestBridge_NumVariables(t *testing.T) {
	f := hosttest.New().Always(ProcGetNumVariables, types.Number(4))
	n, err := New(f).NumVariables(t.Context())
	if err != nil || n != 4 {
		t.Fatalf("NumVariables() = %d, %v", n, err)
	}

	f = hosttest.New().Always(ProcGetNumVariables, types.String("4"))
	_, err = New(f).NumVariables(t.Context())
	wantCode(t, err, types.OutcomeInvalidShape, types.LocationGetNumVariables)

	f = hosttest.New().On(ProcGetNumVariables, hosttest.Status(host.StatusFailed))
	_, err = New(f).NumVariables(t.Context())
	wantCode(t, err, types.OutcomeTransportFailure, types.LocationGetNumVariables)
}

func TestBridge_VariableData(t *testing.T) {
	// lower, upper, start, type blocks for two variables
	f := hosttest.New().Always(ProcGetVariableData, types.Column([]float64{
		-1e10, 0,
		5, 1e10,
		1, 2,
		0, 1,
	}))
	vars, err := New(f).VariableData(t.Context(), 2)
	if err != nil {
		t.Fatalf("VariableData failed: %v", err)
	}
	if !math.IsInf(vars.Lower[0], -1) || vars.Lower[1] != 0 {
		t.Errorf("Lower = %v", vars.Lower)
	}
	if vars.Upper[0] != 5 || !math.IsInf(vars.Upper[1], 1) {
		t.Errorf("Upper = %v", vars.Upper)
	}
	if vars.Start[0] != 1 || vars.Start[1] != 2 {
		t.Errorf("Start = %v", vars.Start)
	}
	if vars.Types[0] != types.VarContinuous || vars.Types[1] != types.VarInteger {
		t.Errorf("Types = %v", vars.Types)
	}
	assertReleased(t, f)
}

func TestBridge_VariableData_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		value types.Variant
	}{
		{name: "short", value: types.Column([]float64{0, 1, 0})},
		{name: "long", value: types.Column([]float64{0, 1, 0, 0, 9})},
		{name: "unknown type", value: types.Column([]float64{0, 1, 0, 3})},
		{name: "fractional type", value: types.Column([]float64{0, 1, 0, 0.5})},
		{name: "error element", value: types.Row(types.Number(0), types.ErrorValue(types.ErrRef), types.Number(0), types.Number(0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := hosttest.New().Always(ProcGetVariableData, tt.value)
			vars, err := New(f).VariableData(t.Context(), 1)
			wantCode(t, err, types.OutcomeInvalidShape, types.LocationGetVariableData)
			if vars != nil {
				t.Errorf("partial result returned: %+v", vars)
			}
			assertReleased(t, f)
		})
	}
}

func TestBridge_OptionData(t *testing.T) {
	rows := types.Array(2, 2, []types.Variant{
		types.String("MAX_BB_EVAL 50xx"), types.Number(14),
		types.String("SEED 3"), types.Number(6),
	})
	f := hosttest.New().Always(ProcGetOptionData, rows)
	lines, err := New(f).OptionData(t.Context())
	if err != nil {
		t.Fatalf("OptionData failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "MAX_BB_EVAL 50" || lines[1] != "SEED 3" {
		t.Errorf("lines = %q", lines)
	}
	assertReleased(t, f)

	f = hosttest.New().Always(ProcGetOptionData, types.Missing())
	lines, err = New(f).OptionData(t.Context())
	if err != nil || len(lines) != 0 {
		t.Errorf("no options = %q, %v", lines, err)
	}

	bad := types.Array(2, 2, []types.Variant{
		types.String("SEED 3"), types.Number(6),
		types.Number(1), types.Number(1),
	})
	f = hosttest.New().Always(ProcGetOptionData, bad)
	lines, err = New(f).OptionData(t.Context())
	wantCode(t, err, types.OutcomeInvalidShape, types.LocationGetOptionData)
	if lines != nil {
		t.Errorf("partial options returned: %q", lines)
	}

	f = hosttest.New().Always(ProcGetOptionData, types.Column([]float64{1, 2, 3}))
	_, err = New(f).OptionData(t.Context())
	wantCode(t, err, types.OutcomeInvalidShape, types.LocationGetOptionData)
}

func TestBridge_MalformedArrayIsInvalidShape(t *testing.T) {
	short := types.Variant{Kind: types.KindArray, Rows: 2, Cols: 2, Elems: []types.Variant{
		types.String("SEED 3"), types.Number(6),
	}}
	nested := types.Row(types.Number(1), types.Variant{Kind: types.KindArray, Rows: 1, Cols: 3})

	tests := []struct {
		name string
		proc string
		call func(ctx context.Context, b *Bridge) error
		loc  types.Location
	}{
		{
			name: "options short",
			proc: ProcGetOptionData,
			call: func(ctx context.Context, b *Bridge) error { _, err := b.OptionData(ctx); return err },
			loc:  types.LocationGetOptionData,
		},
		{
			name: "dimensions short",
			proc: ProcGetNumConstraints,
			call: func(ctx context.Context, b *Bridge) error { _, err := b.Dimensions(ctx); return err },
			loc:  types.LocationGetNumConstraints,
		},
		{
			name: "values short",
			proc: ProcGetValues,
			call: func(ctx context.Context, b *Bridge) error { _, err := b.Values(ctx, 4); return err },
			loc:  types.LocationGetConstraintValues,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := hosttest.New().Always(tt.proc, short)
			wantCode(t, tt.call(t.Context(), New(f)), types.OutcomeInvalidShape, tt.loc)
			assertReleased(t, f)
		})
	}

	t.Run("nested element", func(t *testing.T) {
		f := hosttest.New().Always(ProcGetValues, nested)
		_, err := New(f).Values(t.Context(), 2)
		wantCode(t, err, types.OutcomeInvalidShape, types.LocationGetConstraintValues)
	})
}

func TestBridge_MacroPrefix(t *testing.T) {
	f := hosttest.New().Always("OpenSolver.NOMAD_GetConfirmedAbort", types.Bool(false))
	b := New(f, WithMacroPrefix("OpenSolver.NOMAD_"))

	if err := b.CheckCancel(t.Context(), CheckFull); err != nil {
		t.Fatalf("CheckCancel failed: %v", err)
	}
	procs := f.Procs()
	if len(procs) != 2 || procs[0] != host.ProcAbort || procs[1] != "OpenSolver.NOMAD_GetConfirmedAbort" {
		t.Errorf("procs = %q", procs)
	}
}

func TestBridge_LoadResult(t *testing.T) {
	var got types.Variant
	f := hosttest.New().On(ProcLoadResult, func(args []types.Variant) (host.Reply, error) {
		got = args[0]
		return host.Reply{Value: types.Number(0)}, nil
	})
	if err := New(f).LoadResult(t.Context(), types.ResultStoppedTimeInfeasible); err != nil {
		t.Fatalf("LoadResult failed: %v", err)
	}
	if got.Num != 11 {
		t.Errorf("LoadResult arg = %s, want 11", got)
	}
}

func TestBridge_FreeFailureSurfaces(t *testing.T) {
	f := hosttest.New().Always(ProcGetNumConstraints, types.Row(nums(1, 1)...))
	f.FreeErr = hosttest.ErrFreeRejected
	c := metrics.NewCollector("stdio", "none", "run-001")

	_, err := New(f, WithCollector(c)).Dimensions(t.Context())
	wantCode(t, err, types.OutcomeTransportFailure, types.LocationGetNumConstraints)
	if s := c.Snapshot(); s.FreeFailures != 1 {
		t.Errorf("FreeFailures = %d, want 1", s.FreeFailures)
	}
}

func TestBridge_HandleReleasedOnMechanismFailure(t *testing.T) {
	f := hosttest.New().On(ProcGetValues, func([]types.Variant) (host.Reply, error) {
		return host.Reply{Handle: 77}, hosttest.ErrBroken
	})
	_, err := New(f).Values(t.Context(), 1)
	wantCode(t, err, types.OutcomeTransportFailure, types.LocationGetConstraintValues)
	assertReleased(t, f)
}
