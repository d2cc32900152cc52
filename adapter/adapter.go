// Package adapter defines the completion notification boundary.
//
// Adapters publish solve completion notifications to downstream systems.
// The solve command owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeSolveCompleted is the only event type adapters publish.
const EventTypeSolveCompleted = "solve_completed"

// SolveCompletedEvent is the payload published when a solve run finishes.
type SolveCompletedEvent struct {
	ContractVersion string    `json:"contract_version"`
	EventType       string    `json:"event_type"` // always "solve_completed"
	RunID           string    `json:"run_id"`
	Host            string    `json:"host"`
	Day             string    `json:"day"`
	Result          int       `json:"result"`
	ResultName      string    `json:"result_name"` // optimal, user_cancelled, ...
	StopReason      string    `json:"stop_reason"`
	BestObjective   *float64  `json:"best_objective,omitempty"`
	BestPoint       []float64 `json:"best_point,omitempty"`
	Feasible        bool      `json:"feasible"`
	Evaluations     int       `json:"evaluations"`
	TracePath       string    `json:"trace_path,omitempty"`
	Timestamp       string    `json:"timestamp"` // ISO 8601
	DurationMs      int64     `json:"duration_ms"`
}

// Adapter publishes solve completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SolveCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the wait before the first retry. It doubles for each
// further retry.
var BaseBackoff = 500 * time.Millisecond

// ErrPermanent marks a failure that must not be retried.
var ErrPermanent = errors.New("non-retriable error")

// Retry runs op up to 1+retries times with exponential backoff between
// attempts. An error wrapping ErrPermanent stops immediately.
func Retry(ctx context.Context, name string, retries int, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
