// Package retry provides bounded exponential-backoff retries for transient
// collaborator failures (LLM rate limits, warehouse hiccups).
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config controls retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the delay randomized, 0..1
}

// DefaultConfig is tuned for LLM and warehouse API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// RetryableError is implemented by errors that know whether retrying helps.
type RetryableError interface {
	error
	IsRetryable() bool
}

// retryablePatterns are matched against error text when the error does not
// implement RetryableError.
var retryablePatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"service unavailable",
	"overloaded",
	"503",
	"529",
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget runs out. The last error is returned on exhaustion.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == cfg.MaxAttempts {
			return zero, lastErr
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(applyJitter(delay, cfg.Jitter)):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, lastErr
}

func applyJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	// +/- jitter/2 around the nominal delay
	spread := float64(d) * jitter
	offset := (rand.Float64() - 0.5) * spread
	return time.Duration(float64(d) + offset)
}
