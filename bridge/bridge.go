// Package bridge drives a spreadsheet host as an objective and constraint
// evaluator.
//
// Every host call goes through one path that validates the reply, attaches
// the protocol location to any failure and releases host-allocated result
// buffers on every exit. The bridge is single-threaded: it holds no locks
// and expects one goroutine to drive it.
package bridge

import (
	"context"
	"fmt"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/log"
	"github.com/pithecene-io/cellsolve/metrics"
	"github.com/pithecene-io/cellsolve/types"
)

// Bridge issues the host procedures of the evaluation protocol.
type Bridge struct {
	host    host.Host
	prefix  string
	logger  *log.Logger
	metrics *metrics.Collector
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMacroPrefix prefixes every non-builtin procedure name, e.g.
// "OpenSolver.NOMAD_".
func WithMacroPrefix(prefix string) Option {
	return func(b *Bridge) { b.prefix = prefix }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithCollector sets the metrics collector. A nil collector is valid.
func WithCollector(c *metrics.Collector) Option {
	return func(b *Bridge) { b.metrics = c }
}

// New creates a bridge over h.
func New(h host.Host, opts ...Option) *Bridge {
	b := &Bridge{host: h, logger: log.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetLogger replaces the logger, e.g. once the host has supplied a log file.
func (b *Bridge) SetLogger(l *log.Logger) {
	b.logger = l
}

// invoke calls proc and hands the validated result to consume while the
// host buffer is still live. A consume error becomes InvalidShape at loc.
// The buffer is released exactly once whatever happens; a failed release
// surfaces as TransportFailure only when nothing else failed.
func (b *Bridge) invoke(
	ctx context.Context,
	loc types.Location,
	proc string,
	builtin bool,
	args []types.Variant,
	consume func(types.Variant) error,
) (err error) {
	name := proc
	if !builtin {
		name = b.prefix + proc
	}

	b.metrics.IncHostCalls()
	reply, callErr := b.host.Call(ctx, name, args...)
	if reply.Handle != 0 {
		defer b.release(ctx, loc, reply.Handle, &err)
	}

	switch Validate(reply, callErr) {
	case types.OutcomeTransportFailure:
		detail := fmt.Sprintf("%s: status %s", name, reply.Status)
		if callErr != nil {
			detail = fmt.Sprintf("%s: %v", name, callErr)
		} else if reply.Detail != "" {
			detail += ": " + reply.Detail
		}
		return b.failure(types.OutcomeTransportFailure, loc, detail)
	case types.OutcomeHostLogicFailure:
		return b.failure(types.OutcomeHostLogicFailure, loc, name+": host reported an error")
	}

	if consume == nil {
		return nil
	}
	if serr := reply.Value.CheckShape(); serr != nil {
		return b.failure(types.OutcomeInvalidShape, loc, fmt.Sprintf("%s: %v", name, serr))
	}
	if cerr := consume(reply.Value); cerr != nil {
		return b.failure(types.OutcomeInvalidShape, loc, fmt.Sprintf("%s: %v", name, cerr))
	}
	return nil
}

// release frees a host buffer. It ignores ctx cancellation so a buffer is
// never leaked because the run is winding down.
func (b *Bridge) release(ctx context.Context, loc types.Location, handle uint64, err *error) {
	ferr := b.host.Free(context.WithoutCancel(ctx), handle)
	if ferr == nil {
		b.metrics.IncHandlesFreed()
		return
	}
	b.metrics.IncFreeFailures()
	b.logger.Warn("failed to release host buffer", map[string]any{
		"handle":   handle,
		"location": loc.String(),
		"error":    ferr.Error(),
	})
	if *err == nil {
		*err = b.failure(types.OutcomeTransportFailure, loc, fmt.Sprintf("free %d: %v", handle, ferr))
	}
}

func (b *Bridge) failure(o types.Outcome, loc types.Location, detail string) error {
	switch o {
	case types.OutcomeTransportFailure:
		b.metrics.IncTransportFailures()
	case types.OutcomeHostLogicFailure:
		b.metrics.IncHostLogicFailures()
	case types.OutcomeInvalidShape:
		b.metrics.IncInvalidShapes()
	case types.OutcomeUserAbort:
		b.metrics.IncUserAborts()
	}
	b.metrics.RecordFailure(loc.String())

	err := types.NewError(o, loc, detail)
	b.logger.Debug("host call failed", map[string]any{
		"code":     int(types.CodeOf(err)),
		"outcome":  o.String(),
		"location": loc.String(),
		"detail":   detail,
	})
	return err
}
