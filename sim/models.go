// Package sim implements simulated spreadsheet workbooks that answer the
// host side of the bridge protocol. It backs tests and the
// cellsolve-simhost demo binary.
package sim

import (
	"maps"
	"math"
	"slices"

	"github.com/pithecene-io/cellsolve/types"
)

// Model is a workbook: decision cells, result rows and solver options.
type Model struct {
	Name  string
	Lower []float64
	Upper []float64
	Start []float64
	Types []types.VarType
	// Rows is the number of result rows; the first Objs are objectives.
	Rows    int
	Objs    int
	Options []string
	// Cells computes the result rows at x.
	Cells func(x []float64) []types.Variant
}

func numbers(vs ...float64) []types.Variant {
	out := make([]types.Variant, len(vs))
	for i, v := range vs {
		out[i] = types.Number(v)
	}
	return out
}

var models = map[string]Model{
	// Minimum (1, -2). The constraint row evaluates to exactly -1 there.
	"quadratic": {
		Name:    "quadratic",
		Lower:   []float64{-5, -5},
		Upper:   []float64{5, 5},
		Start:   []float64{0, 0},
		Types:   []types.VarType{types.VarContinuous, types.VarContinuous},
		Rows:    2,
		Objs:    1,
		Options: []string{"MAX_BB_EVAL 500", "DISPLAY_DEGREE 1"},
		Cells: func(x []float64) []types.Variant {
			f := (x[0]-1)*(x[0]-1) + (x[1]+2)*(x[1]+2)
			return numbers(f, x[0]-x[1]-4)
		},
	},
	"rosenbrock": {
		Name:    "rosenbrock",
		Lower:   []float64{-5, -5},
		Upper:   []float64{5, 5},
		Start:   []float64{-1.2, 1},
		Types:   []types.VarType{types.VarContinuous, types.VarContinuous},
		Rows:    1,
		Objs:    1,
		Options: []string{"MAX_BB_EVAL 2000"},
		Cells: func(x []float64) []types.Variant {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			return numbers(a*a + 100*b*b)
		},
	},
	// The objective cell divides by (3 - x) and errors beyond x = 3.
	"errorcell": {
		Name:  "errorcell",
		Lower: []float64{0},
		Upper: []float64{4},
		Start: []float64{0},
		Types: []types.VarType{types.VarContinuous},
		Rows:  2,
		Objs:  1,
		Cells: func(x []float64) []types.Variant {
			if x[0] > 3 {
				return []types.Variant{types.ErrorValue(types.ErrDiv0), types.Number(x[0] - 4)}
			}
			return numbers(-x[0], x[0]-4)
		},
	},
	// Small knapsack: maximise 4a + 3b + 5c + 2d with weight 2a + 2b + 4c + 3d <= 11.
	"knapsack": {
		Name:    "knapsack",
		Lower:   []float64{0, 0, 0, 0},
		Upper:   []float64{5, 5, 5, 1},
		Start:   []float64{0, 0, 0, 0},
		Types:   []types.VarType{types.VarInteger, types.VarInteger, types.VarInteger, types.VarBinary},
		Rows:    2,
		Objs:    1,
		Options: []string{"MAX_BB_EVAL 300"},
		Cells: func(x []float64) []types.Variant {
			value := 4*x[0] + 3*x[1] + 5*x[2] + 2*x[3]
			weight := 2*x[0] + 2*x[1] + 4*x[2] + 3*x[3]
			return numbers(-value, weight-11)
		},
	},
	// No point satisfies both constraints.
	"infeasible": {
		Name:  "infeasible",
		Lower: []float64{-1},
		Upper: []float64{1},
		Start: []float64{0},
		Types: []types.VarType{types.VarContinuous},
		Rows:  3,
		Objs:  1,
		Cells: func(x []float64) []types.Variant {
			return numbers(x[0]*x[0], 0.5-x[0], x[0]+0.5)
		},
	},
}

// Lookup returns the named model.
func Lookup(name string) (Model, bool) {
	m, ok := models[name]
	return m, ok
}

// Names lists the available models.
func Names() []string {
	return slices.Sorted(maps.Keys(models))
}

// encodeBound maps infinite bounds to the host's large-magnitude form.
func encodeBound(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return 1e30
	case math.IsInf(v, -1):
		return -1e30
	default:
		return v
	}
}
