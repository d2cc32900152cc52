package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/cellsolve/bridge"
	"github.com/pithecene-io/cellsolve/log"
)

// Default buffering limits.
const (
	DefaultFlushCount = 64
	DefaultMaxPending = 10000
)

// Config identifies the run whose trace is recorded.
type Config struct {
	RunID string
	Host  string
	// Start is the run start time; it fixes the day partition.
	Start time.Time
	// FlushCount is the number of buffered records that triggers a write.
	FlushCount int
	// MaxPending bounds the buffer when flushes keep failing.
	MaxPending int
}

// Recorder buffers trace records and writes them in batches.
//
// Flushes are at-least-once: a failed write keeps the whole buffer for
// the next attempt. Once MaxPending records are waiting, new evaluation
// records are refused with ErrBufferFull. The summary is always accepted.
type Recorder struct {
	client Client
	config Config
	day    string
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	pending  []map[string]any
	written  int
	dropped  int
	firstErr error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the recorder's logger.
func WithLogger(l *log.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder writing to client.
func NewRecorder(client Client, cfg Config, opts ...RecorderOption) *Recorder {
	if cfg.FlushCount <= 0 {
		cfg.FlushCount = DefaultFlushCount
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	r := &Recorder{
		client: client,
		config: cfg,
		day:    DeriveDay(cfg.Start),
		logger: log.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observer returns a bridge.Observer feeding this recorder. Trace
// failures are logged and never interrupt the search.
func (r *Recorder) Observer(ctx context.Context) bridge.Observer {
	return func(ev bridge.Evaluation) {
		if err := r.Record(ctx, ev); err != nil {
			r.logger.Warn("trace record failed", map[string]any{
				"seq":   ev.Seq,
				"error": err.Error(),
			})
		}
	}
}

// Record buffers one evaluation and flushes when the batch is full.
func (r *Recorder) Record(ctx context.Context, ev bridge.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) >= r.config.MaxPending {
		r.dropped++
		return fmt.Errorf("%w: %d records pending", ErrBufferFull, len(r.pending))
	}
	r.pending = append(r.pending, toEvaluationRecordMap(ev, r.config, r.day, r.now()))
	if len(r.pending) < r.config.FlushCount {
		return nil
	}
	return r.flushLocked(ctx)
}

// Summarize appends the run summary and flushes everything pending.
func (r *Recorder) Summarize(ctx context.Context, s Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, toSummaryRecordMap(s, r.config, r.day, r.now()))
	return r.flushLocked(ctx)
}

// Flush writes all pending records.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.client.Write(ctx, r.pending); err != nil {
		if r.firstErr == nil {
			r.firstErr = err
		}
		r.logger.Warn("trace flush failed, records kept", map[string]any{
			"pending": len(r.pending),
			"error":   err.Error(),
		})
		return err
	}
	r.written += len(r.pending)
	r.logger.Debug("trace flushed", map[string]any{"records": len(r.pending)})
	r.pending = r.pending[:0]
	return nil
}

// Stats reports recorder counters.
type Stats struct {
	Written int
	Pending int
	Dropped int
}

// Stats returns the current recorder counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Written: r.written, Pending: len(r.pending), Dropped: r.dropped}
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

// Close flushes what is pending and closes the client.
func (r *Recorder) Close(ctx context.Context) error {
	flushErr := r.Flush(ctx)
	if err := r.client.Close(); err != nil {
		return err
	}
	return flushErr
}
