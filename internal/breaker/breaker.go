// Package breaker wraps sony/gobreaker with the pipeline's failure taxonomy.
package breaker

import (
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"artist-sync/internal/logging"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/telemetry"
)

// Settings configure one provider breaker.
type Settings struct {
	Name                string
	ConsecutiveFailures uint32
	Cooldown            time.Duration
	HalfOpenMax         uint32
}

// Breaker guards calls to one external provider, shared by every worker
// calling that provider. It trips open after a run of consecutive failures,
// fails fast during the cooldown, then allows a limited probe.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New builds a breaker for the named provider.
func New(s Settings) *Breaker {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	maxRequests := s.HalfOpenMax
	if maxRequests == 0 {
		maxRequests = 1
	}

	telemetry.BreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: maxRequests,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("provider", name).
				Str("from", stateName(from)).
				Str("to", stateName(to)).
				Msg("breaker state change")
			telemetry.BreakerState.WithLabelValues(name).Set(stateValue(to))
			telemetry.BreakerTransitions.WithLabelValues(name, stateName(from), stateName(to)).Inc()
		},
	})

	return &Breaker{name: s.Name, cb: cb}
}

// Execute runs fn through the breaker. Rejections while open (or while the
// half-open probe slot is taken) surface as ErrCircuitOpen; other errors
// pass through untouched and count against the breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", b.name, pipeline.ErrCircuitOpen)
		}
		return nil, err
	}
	return result, nil
}

// State reports the current breaker state name for introspection.
func (b *Breaker) State() string { return stateName(b.cb.State()) }

func stateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
