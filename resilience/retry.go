package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
	
	"github.com/antigravity-dev/capgate/core"
)

// RetryConfig configures retry behavior for a tool call.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	JitterEnabled   bool
}

// DefaultRetryConfig matches the tool-provider's HTTP client: calls cross a
// process boundary to the sandboxed code runner, so the first backoff is
// long enough to outlast a cold container start rather than just burning an
// attempt immediately.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// nonRetryableKinds are gateway error kinds a retry cannot fix: the caller
// sent bad arguments, or a human already rejected the request. Retrying
// one of these just replays the same wrong call against the same tool.
var nonRetryableKinds = map[core.ErrorKind]bool{
	core.KindInvalidArgument:  true,
	core.KindInvalidName:      true,
	core.KindApprovalRejected: true,
}

func isRetryable(err error) bool {
	kind, ok := core.KindOf(err)
	if !ok {
		return true
	}
	return !nonRetryableKinds[kind]
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	
	var lastErr error
	delay := config.InitialDelay
	
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		// Check context
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		
		// Try the function
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		// A tool call that failed for a reason a retry can't fix (bad
		// arguments, a rejected approval) should fail fast rather than
		// spend the remaining attempts replaying the same outcome.
		if !isRetryable(lastErr) {
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}
		
		// Calculate next delay with exponential backoff
		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		
		// Add jitter if enabled to prevent synchronized retries
		// across multiple clients (thundering herd mitigation)
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}
		
		// Sleep with context cancellation
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	
	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}
		
		err := fn()
		if err != nil {
			cb.RecordFailure()
			return err
		}
		
		cb.RecordSuccess()
		return nil
	})
}