/*
Package retry provides the single retry-with-backoff utility shared by the
feed list fetch and per-item detail navigation.
*/
package retry

import (
	"context"
	"time"
)

// Config controls bounded retry with a fixed inter-attempt delay. When
// BaseTimeout is set, attempt n runs under a deadline of BaseTimeout*n, so
// later attempts get progressively more time.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed sleep between attempts.
	Delay time.Duration

	// BaseTimeout bounds each attempt. Zero means attempts inherit the
	// caller's context deadline unchanged.
	BaseTimeout time.Duration

	// OnRetry is called before each retry sleep with the attempt number
	// that just failed and its error.
	OnRetry func(attempt int, err error)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

// Do executes fn until it succeeds or the attempt budget is exhausted,
// returning the last error. Context cancellation stops retries immediately.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value alongside the error.
func DoVal[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := runAttempt(ctx, cfg, attempt, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, cfg Config, attempt int, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.BaseTimeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.BaseTimeout*time.Duration(attempt))
		defer cancel()
		return fn(attemptCtx)
	}
	return fn(ctx)
}
