package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int           // Maximum number of attempts (default: 3)
	InitialDelay    time.Duration // Delay before the second attempt (default: 100ms)
	MaxDelay        time.Duration // Upper bound for the backoff (default: 5s)
	Multiplier      float64       // Exponential backoff multiplier (default: 2.0)
	RetryableErrors []string      // Error substrings that are retryable

	// Retryable overrides the built-in classification when set
	Retryable func(err error) bool
	// Operation names the retried call in log lines
	Operation string
}

// DefaultConfig returns default retry configuration for network calls
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"connection lost",
			"timeout",
			"network is unreachable",
			"no such host",
			"temporary failure",
			"code: 999", // ClickHouse: Connection lost
			"code: 159", // ClickHouse: Timeout exceeded
			"code: 210", // ClickHouse: Connection pool timeout
		},
	}
}

// FileOpenConfig is the backoff used while a freshly written log file is still
// held open by the game
func FileOpenConfig() Config {
	return Config{
		MaxAttempts:  6,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		Retryable:    func(error) bool { return true },
		Operation:    "open log file",
	}
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error, cfg Config) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if cfg.Retryable != nil {
		return cfg.Retryable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// Syntax errors never heal
	if strings.Contains(errStr, "code: 62") || strings.Contains(errStr, "syntax error") {
		return false
	}

	for _, pattern := range cfg.RetryableErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// Do executes a function with retry logic
func Do(ctx context.Context, cfg Config, operation func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// DoWithResult executes a function that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, cfg Config, operation func() (T, error)) (T, error) {
	var zero T

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		result, err := operation()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("operation", cfg.Operation).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err, cfg) {
			log.Debug().
				Err(err).
				Str("operation", cfg.Operation).
				Int("attempt", attempt).
				Msg("Error is not retryable, aborting")
			return zero, err
		}

		if attempt == maxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Str("operation", cfg.Operation).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("retry_delay", delay).
			Msg("Operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	log.Warn().
		Err(lastErr).
		Str("operation", cfg.Operation).
		Int("max_attempts", maxAttempts).
		Msg("Max retry attempts reached")
	return zero, fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}
