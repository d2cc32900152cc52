package trace

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pithecene-io/cellsolve/bridge"
	"github.com/pithecene-io/cellsolve/metrics"
	"github.com/pithecene-io/cellsolve/types"
)

// Record kind discriminator values. record_kind is also the last Hive
// partition key.
const (
	RecordKindEvaluation = "evaluation"
	RecordKindSummary    = "summary"
)

// EvaluationRecord is the storage format for one evaluation.
// Non-finite outputs are stored as null.
type EvaluationRecord struct {
	RecordKind string     `json:"record_kind"`
	RunID      string     `json:"run_id"`
	Day        string     `json:"day"`
	Host       string     `json:"host,omitempty"`
	Ts         string     `json:"ts"`
	Seq        int        `json:"seq"`
	X          []float64  `json:"x"`
	Outputs    []*float64 `json:"outputs"`
	Code       int        `json:"code"`
	Outcome    string     `json:"outcome"`
	Location   string     `json:"location,omitempty"`
	NaNRows    int        `json:"nan_rows"`
	Counted    bool       `json:"counted"`
	DurationMS float64    `json:"duration_ms"`
}

// SummaryRecord is the storage format for the end of a run.
type SummaryRecord struct {
	RecordKind    string         `json:"record_kind"`
	RunID         string         `json:"run_id"`
	Day           string         `json:"day"`
	Host          string         `json:"host,omitempty"`
	Ts            string         `json:"ts"`
	Result        int            `json:"result"`
	ResultName    string         `json:"result_name"`
	StopReason    string         `json:"stop_reason"`
	Cause         string         `json:"cause,omitempty"`
	BestX         []float64      `json:"best_x"`
	BestF         *float64       `json:"best_f"`
	Feasible      bool           `json:"feasible"`
	Evaluations   int            `json:"evaluations"`
	CacheHits     int            `json:"cache_hits"`
	Iterations    int            `json:"iterations"`
	FinalMesh     float64        `json:"final_mesh"`
	ElapsedMS     float64        `json:"elapsed_ms"`
	Version       string         `json:"version"`
	SearchVersion string         `json:"search_version"`
	Metrics       map[string]any `json:"metrics,omitempty"`
}

// Summary is the outcome of a solve run as handed to the recorder.
type Summary struct {
	Result      types.Result
	StopReason  string
	Cause       error
	BestX       []float64
	BestF       float64
	HasBest     bool
	Feasible    bool
	Evaluations int
	CacheHits   int
	Iterations  int
	FinalMesh   float64
	Elapsed     time.Duration
	Metrics     *metrics.Snapshot
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func finiteSlice(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = finite(v)
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// toEvaluationRecordMap converts an evaluation to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toEvaluationRecordMap(ev bridge.Evaluation, cfg Config, day string, ts time.Time) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindEvaluation,
		"run_id":      cfg.RunID,
		"day":         day,
		"ts":          ts.UTC().Format(time.RFC3339Nano),
		"seq":         ev.Seq,
		"x":           finiteSlice(ev.X),
		"outputs":     finiteSlice(ev.Outputs),
		"code":        int(ev.Code),
		"outcome":     ev.Code.Outcome().String(),
		"nan_rows":    ev.NaNRows,
		"counted":     ev.Counted,
		"duration_ms": millis(ev.Duration),
	}
	if ev.Code != 0 {
		m["location"] = ev.Code.Location().String()
	}
	if cfg.Host != "" {
		m["host"] = cfg.Host
	}
	return m
}

// toSummaryRecordMap converts a run summary to a map for Lode storage.
func toSummaryRecordMap(s Summary, cfg Config, day string, ts time.Time) map[string]any {
	m := map[string]any{
		"record_kind":    RecordKindSummary,
		"run_id":         cfg.RunID,
		"day":            day,
		"ts":             ts.UTC().Format(time.RFC3339Nano),
		"result":         int(s.Result),
		"result_name":    s.Result.String(),
		"stop_reason":    s.StopReason,
		"best_x":         finiteSlice(s.BestX),
		"best_f":         nil,
		"feasible":       s.Feasible,
		"evaluations":    s.Evaluations,
		"cache_hits":     s.CacheHits,
		"iterations":     s.Iterations,
		"final_mesh":     finite(s.FinalMesh),
		"elapsed_ms":     millis(s.Elapsed),
		"version":        types.Version,
		"search_version": types.SearchVersion,
	}
	if s.HasBest {
		m["best_f"] = finite(s.BestF)
	}
	if s.Cause != nil {
		m["cause"] = s.Cause.Error()
	}
	if cfg.Host != "" {
		m["host"] = cfg.Host
	}
	if s.Metrics != nil {
		m["metrics"] = metricsMap(s.Metrics)
	}
	return m
}

// metricsMap flattens a snapshot through its JSON form so the stored
// field names match the snapshot's tags.
func metricsMap(s *metrics.Snapshot) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// decodeRecord converts a raw record read back from Lode into out.
func decodeRecord(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
