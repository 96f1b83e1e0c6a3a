package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetry_Success(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastRetry(3), func() (string, error) {
		callCount++
		return "0.6.6", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "0.6.6" {
		t.Errorf("expected '0.6.6', got %q", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastRetry(3), func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("dial tcp: connection reset by peer")
		}
		return 200, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 200 {
		t.Errorf("expected 200, got %d", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastRetry(2), func() (string, error) {
		callCount++
		return "", errors.New("HTTP 503 from github")
	})

	if err == nil {
		t.Error("expected error after max attempts")
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastRetry(3), func() (string, error) {
		callCount++
		return "", errors.New("no asset for plan9/arm")
	})

	if err == nil {
		t.Error("expected error for non-retryable error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retry), got %d", callCount)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	_, err := Retry(ctx, fastRetry(3), func() (string, error) {
		callCount++
		return "ok", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 0 {
		t.Errorf("expected 0 calls, got %d", callCount)
	}
}

func TestRetry_PermanentError(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastRetry(3), func() (string, error) {
		callCount++
		return "", MarkPermanent(errors.New("download URL not allowed: connection refused"))
	})

	if err == nil {
		t.Error("expected error for permanent error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retry for permanent), got %d", callCount)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial: connection refused"), true},
		{"timeout", errors.New("Client.Timeout exceeded"), true},
		{"dns", errors.New("lookup github.com: no such host"), true},
		{"rate limited", errors.New("HTTP 429"), true},
		{"not found", errors.New("HTTP 404"), false},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"case insensitive", errors.New("CONNECTION REFUSED"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientError(tt.err); got != tt.expected {
				t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestMarkPermanent(t *testing.T) {
	original := errors.New("original error")
	permanent := MarkPermanent(original)

	if !IsPermanent(permanent) {
		t.Error("expected IsPermanent to return true")
	}
	if !errors.Is(permanent, original) {
		t.Error("expected permanent error to wrap original")
	}
	if permanent.Error() != "original error" {
		t.Errorf("expected error message to be preserved, got %q", permanent.Error())
	}
	if MarkPermanent(nil) != nil {
		t.Error("expected MarkPermanent(nil) to return nil")
	}
}
