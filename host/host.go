// Package host defines the narrow call surface to a spreadsheet host and
// its platform adapters.
//
// A Host runs named procedures with positional Variant arguments and
// returns one Variant. Calls are never retried at this layer. Results the
// host allocated carry a non-zero Handle and must be released with Free
// exactly once.
package host

import (
	"context"
	"fmt"

	"github.com/pithecene-io/cellsolve/types"
)

// Status is the host call-mechanism status. Values mirror the host's
// native return codes; only StatusSuccess means the procedure ran.
type Status int

const (
	StatusSuccess         Status = 0
	StatusAbort           Status = 1
	StatusInvalidFunction Status = 2
	StatusInvalidCount    Status = 4
	StatusInvalidArgs     Status = 8
	StatusStackOverflow   Status = 16
	StatusFailed          Status = 32
	StatusUncalced        Status = 64
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAbort:
		return "abort"
	case StatusInvalidFunction:
		return "invalid_function"
	case StatusInvalidCount:
		return "invalid_count"
	case StatusInvalidArgs:
		return "invalid_args"
	case StatusStackOverflow:
		return "stack_overflow"
	case StatusFailed:
		return "failed"
	case StatusUncalced:
		return "uncalced"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ProcAbort is the builtin pending-escape procedure. Called with no
// arguments it reports whether an escape press is pending; called with
// Bool(false) it clears the pending flag. It is never macro-prefixed.
const ProcAbort = "xlAbort"

// Reply is the raw result of one host call.
type Reply struct {
	Status Status
	Value  types.Variant
	// Handle is non-zero when the host allocated Value and expects a Free.
	Handle uint64
	// Detail is optional host-supplied text for a non-success Status.
	Detail string
}

// Host is the canonical host interface. Implementations are not safe for
// concurrent use; the bridge drives them from a single goroutine.
type Host interface {
	// Call runs proc. A non-nil error means the call mechanism failed and
	// Reply is undefined except for Handle.
	Call(ctx context.Context, proc string, args ...types.Variant) (Reply, error)
	// Free releases a host-allocated result buffer.
	Free(ctx context.Context, handle uint64) error
	// Close ends the session.
	Close() error
}
