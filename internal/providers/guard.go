// Package providers contains typed clients for the three external data
// providers, each behind a shared rate limiter and circuit breaker.
package providers

import (
	"context"
	"errors"

	"artist-sync/internal/breaker"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/ratelimit"
	"artist-sync/internal/telemetry"
)

// Guard serializes every outbound call through the provider's limiter and
// breaker. Workers block here, never on each other.
type Guard struct {
	name    string
	limiter *ratelimit.ProviderLimiter
	breaker *breaker.Breaker
}

// NewGuard wires a limiter and breaker for one provider.
func NewGuard(name string, limiter *ratelimit.ProviderLimiter, br *breaker.Breaker) *Guard {
	return &Guard{name: name, limiter: limiter, breaker: br}
}

// BreakerState exposes the breaker state for introspection endpoints.
func (g *Guard) BreakerState() string { return g.breaker.State() }

// Do acquires a limiter token, then runs fn through the breaker.
func (g *Guard) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, pipeline.ErrRateLimitTimeout) {
			telemetry.RateLimitTimeouts.WithLabelValues(g.name).Inc()
		}
		return nil, err
	}
	res, err := g.breaker.Execute(fn)
	switch {
	case err == nil:
		telemetry.ProviderRequests.WithLabelValues(g.name, "success").Inc()
	case errors.Is(err, pipeline.ErrCircuitOpen):
		telemetry.ProviderRequests.WithLabelValues(g.name, "rejected").Inc()
	default:
		telemetry.ProviderRequests.WithLabelValues(g.name, "failure").Inc()
	}
	return res, err
}

// call runs fn through the guard and casts the result.
func call[T any](ctx context.Context, g *Guard, fn func() (T, error)) (T, error) {
	var zero T
	res, err := g.Do(ctx, func() (any, error) { return fn() })
	if err != nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, errors.New("guard: unexpected result type")
	}
	return typed, nil
}
