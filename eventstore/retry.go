package eventstore

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"
)

const (
	defaultRetryMaxAttempts  = 6
	defaultRetryBaseDelay    = 10 * time.Millisecond
	defaultRetryJitterFactor = 0.3
)

const (
	RetryDelayMetric              = "eventstore_retry_delay_seconds"
	RetryAttemptsMetric           = "eventstore_retry_attempts_total"
	RetryMaxAttemptsReachedMetric = "eventstore_retry_max_attempts_reached_total"
)

var (
	ErrNilRetryMetricsCollector = errors.New("metrics collector must not be nil")
	ErrEmptyRetryOperation      = errors.New("retry operation name must not be empty")
	ErrInvalidMaxAttempts       = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay        = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor      = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc is one attempt of a Query -> decide -> Append cycle.
type RetryableFunc func(ctx context.Context) error

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector MetricsCollector
	operation        string
}

// RetryOnConcurrencyConflict runs fn until it succeeds, fails with an error other than ErrConcurrencyConflict,
// or the max attempts are reached.
//
// The EventStore never retries by itself. A conflicting append must be retried by the caller with a fresh
// max sequence number, so fn has to contain the Query as well as the Append.
//
// Retry schedule (default): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms (with 30% jitter)
func RetryOnConcurrencyConflict(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultRetryMaxAttempts,
		baseDelay:    defaultRetryBaseDelay,
		jitterFactor: defaultRetryJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec //math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			config.recordDuration(ctx, RetryDelayMetric, backoffDelay, map[string]string{
				"operation":      config.operation,
				"attempt_number": strconv.Itoa(attempt),
			})

			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, ErrConcurrencyConflict) {
			return lastErr
		}

		if attempt < config.maxAttempts-1 {
			config.incrementCounter(ctx, RetryAttemptsMetric, map[string]string{
				"operation":      config.operation,
				"attempt_number": strconv.Itoa(attempt + 1),
			})
		}
	}

	config.incrementCounter(ctx, RetryMaxAttemptsReachedMetric, map[string]string{
		"operation": config.operation,
	})

	return lastErr
}

func (c *retryConfig) recordDuration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, d, labels)
}

func (c *retryConfig) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

// RetryOption configures RetryOnConcurrencyConflict.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets the maximum number of attempts, including the first one.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff: baseDelay, baseDelay*2, baseDelay*4, ...
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter as a fraction of the backoff delay, between 0.0 and 1.0.
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryMetrics records retry delays and attempts, labeled with the operation name.
func WithRetryMetrics(collector MetricsCollector, operation string) RetryOption {
	return func(config *retryConfig) error {
		if collector == nil {
			return ErrNilRetryMetricsCollector
		}

		if operation == "" {
			return ErrEmptyRetryOperation
		}

		config.metricsCollector = collector
		config.operation = operation

		return nil
	}
}
