package embedder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryConfig shapes the backoff schedule for remote provider calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter scales each delay by a random factor in [1-Jitter, 1+Jitter],
	// spreading concurrent batch retries apart.
	Jitter float64
	// Retryable decides whether an attempt's error is worth another try.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the schedule used for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
		Retryable:   retryableAPIError,
	}
}

// statusError carries the HTTP status of a failed provider call so the retry
// policy can tell throttling from a bad request.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.body)
}

// retryableAPIError retries transport failures, throttling and server-side
// errors. Any other 4xx response is permanent: resending the same payload
// cannot change the answer.
func retryableAPIError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// delay returns the backoff before the next attempt, capped and jittered.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= c.Multiplier
	}
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		d *= 1 + c.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// retryWithBackoff executes fn until it succeeds, the error is permanent, or
// the attempt budget runs out. Context cancellation stops immediately.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt >= config.MaxAttempts {
			return zero, err
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(config.delay(attempt)):
		}
	}
}
