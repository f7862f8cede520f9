package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"artist-sync/internal/pipeline"
)

// ProviderLimiter is an in-process token bucket guarding outbound calls to
// one external provider. Acquire blocks the calling worker until a token is
// granted or the acquisition timeout elapses. Token grants are FIFO.
type ProviderLimiter struct {
	name           string
	limiter        *rate.Limiter
	acquireTimeout time.Duration
}

// NewProviderLimiter builds a limiter for the named provider.
// ratePerSec is the steady refill rate, burst the bucket capacity.
func NewProviderLimiter(name string, ratePerSec float64, burst int, acquireTimeout time.Duration) *ProviderLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ProviderLimiter{
		name:           name,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSec), burst),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire blocks until a token is available. If the configured timeout (or
// the caller's context) expires first, it fails with ErrRateLimitTimeout.
func (l *ProviderLimiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}
	if err := l.limiter.Wait(waitCtx); err != nil {
		// Wait returns an error when the context expires before a token
		// frees up, or when the wait would exceed the context deadline.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", l.name, pipeline.ErrRateLimitTimeout)
	}
	return nil
}

// Name identifies the provider this limiter guards.
func (l *ProviderLimiter) Name() string { return l.name }

// PerMinute converts a per-minute allowance into a per-second rate.
func PerMinute(n float64) float64 { return n / 60.0 }
