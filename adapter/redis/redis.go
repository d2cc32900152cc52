// Package redis implements a Redis completion adapter.
//
// Each event is published as JSON on a pub/sub channel. With a key prefix
// configured the same payload is also stored under <prefix><run_id> so a
// host that missed the message can poll for the result. Both writes go in
// one MULTI/EXEC transaction and are retried as a unit.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/cellsolve/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "cellsolve:solve_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultKeyTTL is the default lifetime of a per-run result key.
const DefaultKeyTTL = 24 * time.Hour

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: cellsolve:solve_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// KeyPrefix enables the per-run result key. Empty disables it.
	KeyPrefix string
	// KeyTTL expires the result key (default 24h).
	KeyTTL time.Duration
}

// Adapter publishes solve completion events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = DefaultKeyTTL
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event to the configured channel and, when enabled,
// stores it under the run's result key.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SolveCompletedEvent) error {
	if event.RunID == "" && a.config.KeyPrefix != "" {
		return fmt.Errorf("%w: redis: event has no run_id for the result key", adapter.ErrPermanent)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		if a.config.KeyPrefix == "" {
			return a.client.Publish(publishCtx, a.config.Channel, body).Err()
		}
		_, err := a.client.TxPipelined(publishCtx, func(pipe goredis.Pipeliner) error {
			pipe.Set(publishCtx, a.ResultKey(event.RunID), body, a.config.KeyTTL)
			pipe.Publish(publishCtx, a.config.Channel, body)
			return nil
		})
		return err
	})
}

// ResultKey returns the key holding the result of runID.
func (a *Adapter) ResultKey(runID string) string {
	return a.config.KeyPrefix + runID
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
