// Package trace persists the evaluation trace of a solve run to Lode and
// reads it back.
//
// Records are written as JSONL under a Hive layout partitioned by
// day/run_id/record_kind. Every evaluation produces one record; the run
// ends with one summary record.
package trace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/cellsolve/metrics"
)

// Dataset is the Lode dataset ID for evaluation traces.
const Dataset = "cellsolve"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "run_id", "record_kind"}

// DeriveDay computes the partition day from run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// OpenDataset opens the trace dataset on factory.
func OpenDataset(factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(Dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, Dataset)
	}
	return ds, nil
}

// Client abstracts trace storage.
type Client interface {
	// Write persists a batch of records, preserving order.
	Write(ctx context.Context, records []map[string]any) error
	// Close releases client resources.
	Close() error
}

// LodeClient is the Lode-backed Client.
type LodeClient struct {
	dataset lode.Dataset
}

// NewLodeClient creates a client over factory. Use lode.NewMemoryFactory()
// for testing.
func NewLodeClient(factory lode.StoreFactory) (*LodeClient, error) {
	ds, err := OpenDataset(factory)
	if err != nil {
		return nil, err
	}
	return &LodeClient{dataset: ds}, nil
}

// NewFSClient creates a client with filesystem storage rooted at root.
func NewFSClient(root string) (*LodeClient, error) {
	return NewLodeClient(lode.NewFSFactory(root))
}

// Write implements Client.
func (c *LodeClient) Write(ctx context.Context, records []map[string]any) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]any, len(records))
	for i, r := range records {
		batch[i] = r
	}
	if _, err := c.dataset.Write(ctx, batch, lode.Metadata{}); err != nil {
		return WrapWriteError(err, Dataset)
	}
	return nil
}

// Close implements Client.
func (c *LodeClient) Close() error {
	// Datasets hold no resources that need closing.
	return nil
}

var _ Client = (*LodeClient)(nil)

// InstrumentedClient records write metrics around another Client.
// Each Write increments trace_write_success or trace_write_failure.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps inner with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// Write delegates to the inner client and records success or failure.
func (c *InstrumentedClient) Write(ctx context.Context, records []map[string]any) error {
	err := c.inner.Write(ctx, records)
	if err != nil {
		c.collector.IncTraceWriteFailure()
	} else {
		c.collector.IncTraceWriteSuccess()
	}
	return err
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

var _ Client = (*InstrumentedClient)(nil)

// StubClient records writes in memory. Set Err to make writes fail.
type StubClient struct {
	mu      sync.Mutex
	Batches [][]map[string]any
	Err     error
	Closed  bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Write implements Client.
func (c *StubClient) Write(_ context.Context, records []map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Batches = append(c.Batches, append([]map[string]any(nil), records...))
	return nil
}

// Records returns every record written so far, in order.
func (c *StubClient) Records() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, b := range c.Batches {
		out = append(out, b...)
	}
	return out
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)

// NopClient discards every write.
type NopClient struct{}

// Write implements Client.
func (NopClient) Write(context.Context, []map[string]any) error { return nil }

// Close implements Client.
func (NopClient) Close() error { return nil }

// ErrBufferFull is returned when the recorder's pending buffer is full
// because earlier flushes failed.
var ErrBufferFull = errors.New("trace buffer full")
