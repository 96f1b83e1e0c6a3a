package util

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures retry behavior with exponential backoff.
// It is only used for idempotent network reads (release tags, tool
// downloads); package installs are never retried.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts int

	// InitialDelay is the delay before the first retry (default: 250ms).
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries (default: 4s).
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter adds up to 25% randomness to each delay.
	Jitter bool

	// IsRetryable decides whether an error is worth another attempt.
	// If nil, IsTransientError is used.
	IsRetryable func(error) bool
}

// DefaultRetryConfig returns the backoff used for downloads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		IsRetryable:  IsTransientError,
	}
}

// transientErrorPatterns are substrings of errors that usually clear up on
// their own: flaky networks, overloaded hosts, rate limiting.
var transientErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"timeout",
	"temporary failure",
	"try again",
	"no such host",
	"network is unreachable",
	"no route to host",
	"broken pipe",
	"unexpected eof",
	"tls handshake",
	"http 429",
	"http 502",
	"http 503",
	"http 504",
}

// IsTransientError reports whether err looks like a temporary network
// failure. Context cancellation is never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned on failure.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 4 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = IsTransientError
	}

	var zero T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) || !cfg.IsRetryable(err) || attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter {
			sleep += time.Duration(rand.Float64() * 0.25 * float64(delay))
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

// PermanentError marks an error that must not be retried regardless of
// its message.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent checks if an error is marked as permanent.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// MarkPermanent wraps an error to indicate it should not be retried.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
