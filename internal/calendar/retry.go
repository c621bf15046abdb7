package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/example/availability-engine/internal/logging"
)

// RetryPolicy governs how vendor calls are retried: exponential backoff with
// random jitter, capped per attempt, and only for transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	jitter func() time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy builds a policy with the standard jitter and sleep behavior.
// Non-positive arguments fall back to defaults of 3 retries, a 1 second base
// and a 10 second cap.
func NewRetryPolicy(maxRetries int, base, max time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  base,
		MaxDelay:   max,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := p.BaseDelay << attempt
	if p.jitter != nil {
		backoff += p.jitter()
	}
	if backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}

// Do runs fn, retrying transient failures up to MaxRetries additional times.
// Fatal failures and context cancellation return immediately.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("calendar %s: giving up after %d attempts: %w", op, attempt+1, lastErr)
		}

		wait := p.delay(attempt)
		logger.WarnContext(ctx, "retrying calendar operation",
			slog.String("operation", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", wait),
			slog.String("error", lastErr.Error()),
		)
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
