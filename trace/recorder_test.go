package trace

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pithecene-io/cellsolve/bridge"
	"github.com/pithecene-io/cellsolve/metrics"
	"github.com/pithecene-io/cellsolve/types"
)

var testStart = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

func testEval(seq int) bridge.Evaluation {
	return bridge.Evaluation{
		Seq:      seq,
		X:        []float64{float64(seq), 1},
		Outputs:  []float64{2.5, -1},
		Counted:  true,
		Duration: 3 * time.Millisecond,
	}
}

func newTestRecorder(client Client, flush int) *Recorder {
	return NewRecorder(client, Config{
		RunID:      "run-1",
		Host:       "sim",
		Start:      testStart,
		FlushCount: flush,
	}, WithClock(func() time.Time { return testStart }))
}

func TestRecorder_FlushesInBatches(t *testing.T) {
	stub := NewStubClient()
	r := newTestRecorder(stub, 2)
	ctx := t.Context()

	for i := 1; i <= 3; i++ {
		if err := r.Record(ctx, testEval(i)); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}
	if len(stub.Batches) != 1 || len(stub.Batches[0]) != 2 {
		t.Fatalf("batches = %d, want one batch of 2", len(stub.Batches))
	}
	if st := r.Stats(); st.Written != 2 || st.Pending != 1 {
		t.Errorf("stats = %+v", st)
	}

	if err := r.Summarize(ctx, Summary{Result: types.ResultOptimal, StopReason: "mesh_converged"}); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	records := stub.Records()
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	last := records[3]
	if last["record_kind"] != RecordKindSummary || last["result_name"] != "optimal" {
		t.Errorf("summary = %v", last)
	}
}

func TestRecorder_EvaluationRecord(t *testing.T) {
	stub := NewStubClient()
	r := newTestRecorder(stub, 1)

	ev := testEval(7)
	ev.Outputs = []float64{math.NaN(), -1}
	ev.NaNRows = 1
	if err := r.Record(t.Context(), ev); err != nil {
		t.Fatal(err)
	}

	rec := stub.Records()[0]
	want := map[string]any{
		"record_kind": RecordKindEvaluation,
		"run_id":      "run-1",
		"day":         "2026-02-03",
		"host":        "sim",
		"seq":         7,
		"nan_rows":    1,
		"counted":     true,
		"outcome":     "success",
		"duration_ms": 3.0,
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	outputs := rec["outputs"].([]any)
	if outputs[0] != nil || outputs[1] != -1.0 {
		t.Errorf("outputs = %v, want [nil -1]", outputs)
	}
	if _, ok := rec["location"]; ok {
		t.Error("success record carries a location")
	}
}

func TestRecorder_FailedEvaluationLocation(t *testing.T) {
	stub := NewStubClient()
	r := newTestRecorder(stub, 1)

	ev := testEval(1)
	ev.Code = types.Encode(types.OutcomeUserAbort, types.LocationCheckEscape)
	ev.Outputs = nil
	ev.Counted = false
	if err := r.Record(t.Context(), ev); err != nil {
		t.Fatal(err)
	}
	rec := stub.Records()[0]
	if rec["code"] != 201 || rec["outcome"] != "user_abort" || rec["location"] != "CheckEscapeKeypress" {
		t.Errorf("record = %v", rec)
	}
}

func TestRecorder_FailedFlushKeepsRecords(t *testing.T) {
	stub := NewStubClient()
	stub.Err = errors.New("write: no space left on device")
	r := newTestRecorder(stub, 1)
	ctx := t.Context()

	if err := r.Record(ctx, testEval(1)); err == nil {
		t.Fatal("expected flush error")
	}
	if st := r.Stats(); st.Pending != 1 || st.Written != 0 {
		t.Fatalf("stats after failure = %+v", st)
	}

	stub.Err = nil
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if st := r.Stats(); st.Pending != 0 || st.Written != 1 {
		t.Errorf("stats after retry = %+v", st)
	}
	if r.Err() == nil {
		t.Error("first write failure was not kept")
	}
}

func TestRecorder_BufferBound(t *testing.T) {
	stub := NewStubClient()
	stub.Err = errors.New("network unreachable")
	r := NewRecorder(stub, Config{RunID: "run-1", FlushCount: 10, MaxPending: 2})
	ctx := t.Context()

	_ = r.Record(ctx, testEval(1))
	_ = r.Record(ctx, testEval(2))
	if err := r.Record(ctx, testEval(3)); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("err = %v, want ErrBufferFull", err)
	}
	if st := r.Stats(); st.Dropped != 1 || st.Pending != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRecorder_ObserverSwallowsErrors(t *testing.T) {
	stub := NewStubClient()
	stub.Err = errors.New("boom")
	r := newTestRecorder(stub, 1)

	observe := r.Observer(t.Context())
	observe(testEval(1)) // must not panic
	if r.Err() == nil {
		t.Error("observer failure not recorded")
	}
}

func TestRecorder_SummaryFields(t *testing.T) {
	stub := NewStubClient()
	r := newTestRecorder(stub, 10)
	mc := metrics.NewCollector("sim", "memory", "run-1")
	mc.IncEvaluations()
	snap := mc.Snapshot()

	err := r.Summarize(t.Context(), Summary{
		Result:      types.ResultUserCancelled,
		StopReason:  "forced",
		Cause:       errors.New("aborted"),
		BestX:       []float64{1, 2},
		BestF:       math.Inf(1),
		HasBest:     true,
		Evaluations: 5,
		FinalMesh:   0.25,
		Elapsed:     2 * time.Second,
		Metrics:     &snap,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := stub.Records()[0]
	if rec["result"] != -3 || rec["cause"] != "aborted" || rec["best_f"] != nil {
		t.Errorf("summary = %v", rec)
	}
	if rec["elapsed_ms"] != 2000.0 {
		t.Errorf("elapsed_ms = %v", rec["elapsed_ms"])
	}
	m, ok := rec["metrics"].(map[string]any)
	if !ok || m["evaluations"] != 1.0 {
		t.Errorf("metrics = %v", rec["metrics"])
	}
}

func TestRecorder_CloseFlushes(t *testing.T) {
	stub := NewStubClient()
	r := newTestRecorder(stub, 10)
	_ = r.Record(t.Context(), testEval(1))

	if err := r.Close(t.Context()); err != nil {
		t.Fatal(err)
	}
	if !stub.Closed || len(stub.Records()) != 1 {
		t.Errorf("closed = %v records = %d", stub.Closed, len(stub.Records()))
	}
}

func TestInstrumentedClient(t *testing.T) {
	stub := NewStubClient()
	mc := metrics.NewCollector("sim", "memory", "run-1")
	c := NewInstrumentedClient(stub, mc)
	rec := []map[string]any{{"record_kind": RecordKindEvaluation}}

	_ = c.Write(t.Context(), rec)
	stub.Err = errors.New("boom")
	_ = c.Write(t.Context(), rec)

	snap := mc.Snapshot()
	if snap.TraceWriteSuccess != 1 || snap.TraceWriteFailure != 1 {
		t.Errorf("success = %d failure = %d", snap.TraceWriteSuccess, snap.TraceWriteFailure)
	}
}
