package collector

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// RetryPolicy decides how a throttled provider call is retried.
type RetryPolicy struct {
	// MaxAttempts includes the first call. Two means one retry.
	MaxAttempts    int
	DefaultBackoff time.Duration
	MaxBackoff     time.Duration
	// Sleep waits for d or until ctx is done. Tests swap in a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries once after the provider-indicated cooldown.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		DefaultBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
		Sleep:          sleepContext,
	}
}

// NoDelayRetryPolicy behaves like DefaultRetryPolicy without waiting.
func NoDelayRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff picks the wait before the next attempt.
func (p RetryPolicy) Backoff(hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		d = p.DefaultBackoff
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// throttledError marks a single attempt that was rate limited.
type throttledError struct {
	retryAfter time.Duration
}

func (e *throttledError) Error() string { return "rate limited" }

// Do runs attempt, retrying throttled attempts until MaxAttempts is reached.
func (p RetryPolicy) Do(ctx context.Context, target string, attempt func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for i := 1; ; i++ {
		err := attempt(ctx)
		var th *throttledError
		if !errors.As(err, &th) {
			return err
		}
		if i >= maxAttempts {
			return &domain.RateLimitedError{Target: target, RetryAfter: th.retryAfter}
		}
		if err := sleep(ctx, p.Backoff(th.retryAfter)); err != nil {
			return &domain.ProviderError{Kind: domain.ProviderNetwork, Target: target, Err: err}
		}
	}
}

// RetryAfter reads the cooldown from Retry-After (seconds or HTTP date) or X-Ratelimit-Reset.
func RetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("X-Ratelimit-Reset"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
