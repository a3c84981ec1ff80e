// Package transfer holds the plumbing shared by every object transfer in a
// pipeline run: retry with exponential backoff and a bandwidth limiter
// shared across workers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cryptoe/flatbridge"
)

// RetryConfig configures retry behavior for failed operations.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// 0 means no retries (fail on first error).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	// Default is 1 second.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default is 30 seconds.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	// Default is 2.0.
	Multiplier float64

	// Jitter adds +/- this fraction of random variation to each delay.
	// Default is 0.1.
	Jitter float64

	// Retryable decides whether an error should be retried.
	// If nil, IsRetryable is used.
	Retryable func(error) bool

	// OnRetry is called before sleeping ahead of each retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns retry config with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry runs op until it succeeds, returns a non-retryable error, the
// attempt budget is spent, or ctx is done.
func Retry(ctx context.Context, config RetryConfig, op func(ctx context.Context) error) error {
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			return unwrapPermanent(err)
		}
		if attempt == config.MaxRetries {
			break
		}

		actualDelay := delay
		if config.Jitter > 0 {
			jitter := float64(delay) * config.Jitter
			actualDelay = delay + time.Duration((rand.Float64()*2-1)*jitter) //nolint:gosec // G404: timing jitter only
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, actualDelay)
		}

		timer := time.NewTimer(actualDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	if config.MaxRetries == 0 {
		return unwrapPermanent(lastErr)
	}
	return &RetryError{
		Attempts: config.MaxRetries + 1,
		LastErr:  lastErr,
	}
}

// RetryError indicates an operation failed after all retry attempts.
type RetryError struct {
	Attempts int
	LastErr  error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryError) Unwrap() error {
	return e.LastErr
}

// IsRetryError returns true if err is a RetryError.
func IsRetryError(err error) bool {
	var re *RetryError
	return errors.As(err, &re)
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

// IsRetryable reports whether err is worth another attempt. Missing
// objects, denied access, closed backends, cancellation, and errors marked
// Permanent are final; everything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, flatbridge.ErrNotFound),
		errors.Is(err, flatbridge.ErrPermissionDenied),
		errors.Is(err, flatbridge.ErrBackendClosed),
		errors.Is(err, flatbridge.ErrInvalidPath):
		return false
	}
	return true
}

// IsTemporaryError returns true if err reports itself as a timeout or a
// temporary network condition.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		return timeout.Timeout()
	}

	return false
}
