// Package metrics provides per-run counters for a solve.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies; failure locations are recorded as plain
// strings so callers decide the naming.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`

	// Host transport
	HostCalls          int64            `json:"host_calls"`
	TransportFailures  int64            `json:"transport_failures"`
	HostLogicFailures  int64            `json:"host_logic_failures"`
	InvalidShapes      int64            `json:"invalid_shapes"`
	HandlesFreed       int64            `json:"handles_freed"`
	FreeFailures       int64            `json:"free_failures"`
	FailuresByLocation map[string]int64 `json:"failures_by_location"`

	// Evaluation
	Evaluations       int64 `json:"evaluations"`
	EvaluationsFailed int64 `json:"evaluations_failed"`
	NaNCells          int64 `json:"nan_cells"`

	// Cancellation
	CancelPrompts int64 `json:"cancel_prompts"`
	UserAborts    int64 `json:"user_aborts"`

	// Trace storage
	TraceWriteSuccess int64 `json:"trace_write_success"`
	TraceWriteFailure int64 `json:"trace_write_failure"`

	// Dimensions (informational, set at construction)
	HostMode     string `json:"host_mode"`
	TraceBackend string `json:"trace_backend"`
	RunID        string `json:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	hostCalls          int64
	transportFailures  int64
	hostLogicFailures  int64
	invalidShapes      int64
	handlesFreed       int64
	freeFailures       int64
	failuresByLocation map[string]int64

	evaluations       int64
	evaluationsFailed int64
	nanCells          int64

	cancelPrompts int64
	userAborts    int64

	traceWriteSuccess int64
	traceWriteFailure int64

	hostMode     string
	traceBackend string
	runID        string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(hostMode, traceBackend, runID string) *Collector {
	return &Collector{
		failuresByLocation: make(map[string]int64),
		hostMode:           hostMode,
		traceBackend:       traceBackend,
		runID:              runID,
	}
}

func (c *Collector) add(p *int64, n int64) {
	c.mu.Lock()
	*p += n
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.add(&c.runsStarted, 1)
}

// IncRunCompleted records a run that produced a search result.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.add(&c.runsCompleted, 1)
}

// IncRunFailed records a run that ended with an error before or during search.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.add(&c.runsFailed, 1)
}

// --- Host transport ---

// IncHostCalls records one procedure call sent to the host.
func (c *Collector) IncHostCalls() {
	if c == nil {
		return
	}
	c.add(&c.hostCalls, 1)
}

// IncTransportFailures records a call the mechanism rejected.
func (c *Collector) IncTransportFailures() {
	if c == nil {
		return
	}
	c.add(&c.transportFailures, 1)
}

// IncHostLogicFailures records a call that returned the error sentinel.
func (c *Collector) IncHostLogicFailures() {
	if c == nil {
		return
	}
	c.add(&c.hostLogicFailures, 1)
}

// IncInvalidShapes records a result of the wrong type or dimensions.
func (c *Collector) IncInvalidShapes() {
	if c == nil {
		return
	}
	c.add(&c.invalidShapes, 1)
}

// IncHandlesFreed records a released host result buffer.
func (c *Collector) IncHandlesFreed() {
	if c == nil {
		return
	}
	c.add(&c.handlesFreed, 1)
}

// IncFreeFailures records a failed buffer release.
func (c *Collector) IncFreeFailures() {
	if c == nil {
		return
	}
	c.add(&c.freeFailures, 1)
}

// RecordFailure counts a located failure under its location name.
func (c *Collector) RecordFailure(location string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failuresByLocation[location]++
	c.mu.Unlock()
}

// --- Evaluation ---

// IncEvaluations records a completed evaluation cycle.
func (c *Collector) IncEvaluations() {
	if c == nil {
		return
	}
	c.add(&c.evaluations, 1)
}

// IncEvaluationsFailed records an evaluation cycle that ended in error.
func (c *Collector) IncEvaluationsFailed() {
	if c == nil {
		return
	}
	c.add(&c.evaluationsFailed, 1)
}

// AddNaNCells records result cells replaced with NaN.
func (c *Collector) AddNaNCells(n int) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.nanCells, int64(n))
}

// --- Cancellation ---

// IncCancelPrompts records a cancel confirmation dialog shown to the user.
func (c *Collector) IncCancelPrompts() {
	if c == nil {
		return
	}
	c.add(&c.cancelPrompts, 1)
}

// IncUserAborts records a confirmed user abort.
func (c *Collector) IncUserAborts() {
	if c == nil {
		return
	}
	c.add(&c.userAborts, 1)
}

// --- Trace storage ---
// Trace counters are per-flush, not per-record. A single flush of N
// evaluation records counts as 1 success.

// IncTraceWriteSuccess records a successful trace flush.
func (c *Collector) IncTraceWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.traceWriteSuccess, 1)
}

// IncTraceWriteFailure records a failed trace flush.
func (c *Collector) IncTraceWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.traceWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byLocation := make(map[string]int64, len(c.failuresByLocation))
	for k, v := range c.failuresByLocation {
		byLocation[k] = v
	}

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		HostCalls:          c.hostCalls,
		TransportFailures:  c.transportFailures,
		HostLogicFailures:  c.hostLogicFailures,
		InvalidShapes:      c.invalidShapes,
		HandlesFreed:       c.handlesFreed,
		FreeFailures:       c.freeFailures,
		FailuresByLocation: byLocation,

		Evaluations:       c.evaluations,
		EvaluationsFailed: c.evaluationsFailed,
		NaNCells:          c.nanCells,

		CancelPrompts: c.cancelPrompts,
		UserAborts:    c.userAborts,

		TraceWriteSuccess: c.traceWriteSuccess,
		TraceWriteFailure: c.traceWriteFailure,

		HostMode:     c.hostMode,
		TraceBackend: c.traceBackend,
		RunID:        c.runID,
	}
}
