// Package hosttest provides an in-process scripted Host for tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/types"
)

// Errors for scripting failures.
var (
	// ErrBroken simulates a dead call mechanism.
	ErrBroken = errors.New("hosttest: call mechanism failed")
	// ErrFreeRejected simulates a host refusing to release a buffer.
	ErrFreeRejected = errors.New("hosttest: free rejected")
)

// Call records one invocation.
type Call struct {
	Proc string
	Args []types.Variant
}

// Responder produces the reply for one call. A non-nil error simulates a
// failed call mechanism.
type Responder func(args []types.Variant) (host.Reply, error)

// Fake is a scripted host. Procedures without a responder reply
// StatusInvalidFunction. Array values are given a handle automatically
// unless the responder sets one.
type Fake struct {
	mu         sync.Mutex
	responders map[string][]Responder
	calls      []Call
	nextHandle uint64
	live       map[uint64]string
	frees      map[uint64]int
	FreeErr    error
	closed     bool
}

var _ host.Host = (*Fake)(nil)

// New creates an empty fake. The builtin abort procedure answers "not
// pending" until scripted otherwise.
func New() *Fake {
	f := &Fake{
		responders: make(map[string][]Responder),
		live:       make(map[uint64]string),
		frees:      make(map[uint64]int),
	}
	f.Always(host.ProcAbort, types.Bool(false))
	return f
}

// On replaces the responder for proc.
func (f *Fake) On(proc string, r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[proc] = []Responder{r}
	return f
}

// Always answers proc with v on every call.
func (f *Fake) Always(proc string, v types.Variant) *Fake {
	return f.On(proc, Value(v))
}

// Then queues responders for proc that are used once each, in order; the
// last one repeats.
func (f *Fake) Then(proc string, rs ...Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[proc] = append([]Responder(nil), rs...)
	return f
}

// Value responds with a successful v.
func Value(v types.Variant) Responder {
	return func([]types.Variant) (host.Reply, error) {
		return host.Reply{Status: host.StatusSuccess, Value: v}, nil
	}
}

// Status responds with a non-success call status.
func Status(s host.Status) Responder {
	return func([]types.Variant) (host.Reply, error) {
		return host.Reply{Status: s}, nil
	}
}

// Fail simulates a broken call mechanism.
func Fail(err error) Responder {
	return func([]types.Variant) (host.Reply, error) {
		return host.Reply{}, err
	}
}

// Call implements host.Host.
func (f *Fake) Call(_ context.Context, proc string, args ...types.Variant) (host.Reply, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return host.Reply{}, errors.New("hosttest: closed")
	}
	f.calls = append(f.calls, Call{Proc: proc, Args: args})
	queue := f.responders[proc]
	var r Responder
	switch len(queue) {
	case 0:
	case 1:
		r = queue[0]
	default:
		r = queue[0]
		f.responders[proc] = queue[1:]
	}
	f.mu.Unlock()

	if r == nil {
		return host.Reply{Status: host.StatusInvalidFunction}, nil
	}
	reply, err := r(args)
	if reply.Handle == 0 && reply.Value.IsArray() {
		f.mu.Lock()
		f.nextHandle++
		reply.Handle = f.nextHandle
		f.live[reply.Handle] = proc
		f.mu.Unlock()
	} else if reply.Handle != 0 {
		f.mu.Lock()
		f.live[reply.Handle] = proc
		f.mu.Unlock()
	}
	return reply, err
}

// Free implements host.Host.
func (f *Fake) Free(_ context.Context, handle uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frees[handle]++
	if _, ok := f.live[handle]; !ok {
		return fmt.Errorf("hosttest: free of unknown handle %d", handle)
	}
	delete(f.live, handle)
	return f.FreeErr
}

// Close implements host.Host.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Procs returns the recorded procedure names in order.
func (f *Fake) Procs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Proc
	}
	return out
}

// Leaked returns handles that were handed out and never freed.
func (f *Fake) Leaked() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, 0, len(f.live))
	for h := range f.live {
		out = append(out, h)
	}
	return out
}

// DoubleFrees returns handles freed more than once.
func (f *Fake) DoubleFrees() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint64
	for h, n := range f.frees {
		if n > 1 {
			out = append(out, h)
		}
	}
	return out
}
