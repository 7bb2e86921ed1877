package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
)

// transientMarkers are lowercase error fragments that indicate a request worth repeating.
var transientMarkers = []string{
	// timeouts
	"timeout",
	"deadline exceeded",
	// rate limiting
	"429",
	"too many requests",
	"rate limit",
	// temporary server errors
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	// connection pool exhausted
	"connection pool",
	"no available connection",
	// load balanced nodes lagging behind the head
	"header not found",
}

// retryableError checks if an error should trigger a retry. Range limit rejections are
// not retried here: repeating the same eth_getLogs range fails the same way, the scanner
// narrows the range instead.
func retryableError(err error) bool {
	if err == nil || IsRangeLimitError(err) {
		return false
	}

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Connection errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Provider messages
	errStr := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}

	return false
}

// calculateBackoff computes the backoff duration for a given attempt with jitter.
func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	// Calculate exponential backoff
	backoff := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))

	// Cap at max backoff
	backoff = math.Min(backoff, float64(cfg.MaxBackoff.Duration))

	// jitter of +-25%
	jitterRange := backoff * 0.25 //nolint:mnd
	backoff += (rand.Float64() * 2 * jitterRange) - jitterRange

	// Ensure non-negative
	return time.Duration(math.Max(backoff, 0))
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// It respects context cancellation and deadlines. A nil cfg executes fn once.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, operation string, fn func() error) error {
	if cfg == nil {
		// No retry config, execute once
		return fn()
	}

	var lastErr error
	startTime := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// Check if error is retryable
		if !retryableError(err) {
			return fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, cfg.MaxAttempts, err)
		}

		// No more attempts left
		if attempt >= cfg.MaxAttempts {
			break
		}

		// calculateBackoff treats the attempt number as the upcoming one
		if backoff := calculateBackoff(attempt+1, cfg); backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w",
					attempt, cfg.MaxAttempts, ctx.Err())
			}
		}

		// Increment retry counter
		RPCRetryInc(operation)
	}

	// All retries exhausted
	return fmt.Errorf("all %d attempts failed after %v (last error: %w)",
		cfg.MaxAttempts, time.Since(startTime), lastErr)
}
