package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pinpincloud/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries   int           // Retries after the first attempt
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on a single delay, zero means uncapped
	Multiplier   float64       // Multiplier for exponential backoff

	// Retryable decides whether a failed attempt may be retried. Nil retries every error.
	Retryable func(error) bool
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DownloadRetryConfig returns the blob download policy: 3 retries at 1s, 2s, 4s
func DownloadRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int             `json:"attempts"`
	Retries       int             `json:"retries"`
	Delays        []time.Duration `json:"delays,omitempty"`
	Success       bool            `json:"success"`
	TotalDuration time.Duration   `json:"totalDuration"`
	LastError     error           `json:"-"`
}

// RetryFunc is a function that can be retried. attempt starts at 1.
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes a function with exponential backoff retry logic
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	result := &RetryResult{}

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if result.Retries > 0 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration,
				}).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if config.Retryable != nil && !config.Retryable(err) {
			break
		}

		if result.Retries >= config.MaxRetries {
			logger.WithFields(map[string]interface{}{
				"attempts":      attempt,
				"totalDuration": time.Since(startTime),
			}).WithError(err).Error("Operation failed after max retry attempts")
			break
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, result.Retries+1)

		logger.WithFields(map[string]interface{}{
			"attempt":    attempt,
			"maxRetries": config.MaxRetries,
			"delay":      delay,
		}).WithError(err).Warn("Operation failed, retrying with exponential backoff")

		if serr := sleep(ctx, delay); serr != nil {
			logger.WithError(serr).Warn("Retry cancelled during backoff")
			result.LastError = serr
			break
		}
		result.Retries++
		result.Delays = append(result.Delays, delay)
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay returns initialDelay * multiplier^(retry-1) for the given 1-based retry
func calculateDelay(config *RetryConfig, retry int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(retry-1))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn under config and returns the final error, if any
func Do(ctx context.Context, config *RetryConfig, fn RetryFunc) error {
	result := WithExponentialBackoff(ctx, config, fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}
