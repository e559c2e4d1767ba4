package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrorType classifies a failed read for the retry strategy.
type ErrorType int

const (
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork is a transport failure (timeouts, resets, refused).
	ErrorTypeNetwork
	// ErrorTypeRetryable is a server-side failure (5xx, throttling).
	ErrorTypeRetryable
	// ErrorTypeFatal is everything else, including 4xx.
	ErrorTypeFatal
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// RetryConfig holds retry parameters for ExecuteWithRetry.
// Only idempotent reads go through it; writes are never retried.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is invoked before each retry attempt
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig returns the settings used for object store listings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// ClassifyError determines the error type for retry strategy
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == 429 || code >= 500:
			return ErrorTypeRetryable
		default:
			return ErrorTypeFatal
		}
	}

	errStr := strings.ToLower(err.Error())

	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "i/o timeout", "tls handshake timeout", "eof", "timeout"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeNetwork
		}
	}

	// S3 and Azure service error codes
	for _, s := range []string{"slowdown", "throttl", "serverbusy", "server busy", "internalerror", "serviceunavailable", "operationtimeout", "requesttimeout"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeRetryable
		}
	}

	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs operation until it succeeds, hits a fatal error,
// exhausts MaxRetries or the context ends. A backoff that would outlive the
// context deadline ends the loop immediately.
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal {
			return err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		backoff := CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < backoff {
			return fmt.Errorf("deadline too close to retry: %w", err)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}
