package trace

// RunStats aggregates the trace of one run. The CLI renders it as a
// table or json and the TUI shows the same payload.
type RunStats struct {
	RunID          string    `json:"run_id"`
	Result         string    `json:"result"`
	StopReason     string    `json:"stop_reason,omitempty"`
	Evaluations    int       `json:"evaluations"`
	Counted        int       `json:"counted"`
	Failed         int       `json:"failed"`
	NaNEvaluations int       `json:"nan_evaluations"`
	NaNCells       int       `json:"nan_cells"`
	BestObjective  *float64  `json:"best_objective"`
	BestPoint      []float64 `json:"best_point,omitempty"`
	Feasible       bool      `json:"feasible"`
	TotalEvalMS    float64   `json:"total_eval_ms"`
}

// ResultInProgress is reported for a run without a summary record.
const ResultInProgress = "in_progress"

// Stats aggregates r.
func (r *Run) Stats() RunStats {
	s := RunStats{RunID: r.RunID, Result: ResultInProgress}
	for _, ev := range r.Evaluations {
		s.Evaluations++
		if ev.Counted {
			s.Counted++
		}
		if ev.Code != 0 {
			s.Failed++
		}
		if ev.NaNRows > 0 {
			s.NaNEvaluations++
			s.NaNCells += ev.NaNRows
		}
		s.TotalEvalMS += ev.DurationMS
	}
	if sum := r.Summary; sum != nil {
		s.Result = sum.ResultName
		s.StopReason = sum.StopReason
		s.BestObjective = sum.BestF
		s.BestPoint = sum.BestX
		s.Feasible = sum.Feasible
	}
	return s
}
