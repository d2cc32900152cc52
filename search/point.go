package search

import (
	"math"
	"strconv"
	"strings"
)

// EvalPoint is one evaluated candidate.
type EvalPoint struct {
	X       []float64
	Outputs []float64
	// F is the first objective row, +Inf when it is NaN or absent rows
	// make it undefined.
	F float64
	// H is the squared constraint violation; +Inf when any constraint
	// row is NaN.
	H        float64
	Feasible bool
}

// newPoint scores outputs. The first numObjs rows are objectives and only
// the first is minimised; the remaining rows are constraints c <= 0.
func newPoint(x, outputs []float64, numObjs int) *EvalPoint {
	p := &EvalPoint{X: x, Outputs: outputs}
	if numObjs > 0 {
		p.F = outputs[0]
	}
	if math.IsNaN(p.F) {
		p.F = math.Inf(1)
		p.H = math.Inf(1)
	}
	for _, c := range outputs[numObjs:] {
		switch {
		case math.IsNaN(c):
			p.H = math.Inf(1)
		case c > 0:
			p.H += c * c
		}
	}
	p.Feasible = p.H == 0
	return p
}

// better reports whether p improves on q. A feasible point beats any
// infeasible one; infeasible points are ranked by violation, then
// objective.
func better(p, q *EvalPoint) bool {
	switch {
	case q == nil:
		return true
	case p.Feasible && !q.Feasible:
		return true
	case !p.Feasible && q.Feasible:
		return false
	case p.Feasible:
		return p.F < q.F
	default:
		return p.H < q.H || (p.H == q.H && p.F < q.F)
	}
}

func cacheKey(x []float64) string {
	var sb strings.Builder
	for i, v := range x {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}
