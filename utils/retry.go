package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often and how patiently an operation is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// MaxDelay caps a single backoff step; zero means 5s.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries nothing.
	Retryable func(error) bool
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of attempts or ctx ends.
// The delay doubles after each failed attempt starting at BaseDelay. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) || attempt == attempts {
			return err
		}
		Logger.Debug("retrying after transient error", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else if ctx.Err() != nil {
			return err
		}
	}
	return err
}
