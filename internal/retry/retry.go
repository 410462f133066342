// Package retry runs operations with bounded exponential backoff.
//
// It is used for the two kinds of transient failure spot sees: an external
// profiling tool that exits non-zero or stalls, and write conflicts reported by
// the SQL engine when several ingestion workers commit at once. Backoff
// durations are computed by github.com/jpillora/backoff.
//
//	cfg := retry.Config{
//	    MaxRetries:     3,
//	    InitialBackoff: 200 * time.Millisecond,
//	    MaxBackoff:     5 * time.Second,
//	}
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return runTool(ctx)
//	}, errors.IsRetryable)
//
// All waits respect context cancellation.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
)

// Config defines the retry behavior.
//
// The zero value runs the operation exactly once.
type Config struct {
	// MaxRetries is the maximum number of attempts. Values below 1 mean 1.
	MaxRetries int

	// InitialBackoff is the wait before the second attempt. Each further
	// attempt doubles it. Zero means 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait. Zero means 10s.
	MaxBackoff time.Duration

	// Jitter randomizes each wait between InitialBackoff and the computed value.
	Jitter bool
}

// ShouldRetryFunc reports whether err should trigger another attempt.
// A nil ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, shouldRetry rejects its error, the attempts
// are exhausted or ctx is done.
//
// When attempts are exhausted the returned error wraps the last error from fn.
// When ctx is done during a wait, ctx.Err() is returned.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	b := cfg.newBackoff()
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(b.Duration())
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d retries: %w", attempts, lastErr)
}

// newBackoff builds the duration generator for one Do call.
func (c Config) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.InitialBackoff,
		Max:    c.MaxBackoff,
		Factor: 2,
		Jitter: c.Jitter,
	}
}

// Delay returns the wait that precedes attempt n (1-based, attempt 1 has no wait).
func (c Config) Delay(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	return c.newBackoff().ForAttempt(float64(n - 2))
}
