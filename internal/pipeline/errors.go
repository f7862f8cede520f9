// Package pipeline holds the failure taxonomy and per-item result types
// shared by provider adapters, stage processors, and the worker loop.
package pipeline

import "errors"

// Failure classes. Adapters translate provider HTTP failures into these;
// the worker decides retry behavior from them.
var (
	// ErrRateLimitTimeout means a limiter token was not granted in time.
	ErrRateLimitTimeout = errors.New("rate limit acquisition timed out")
	// ErrCircuitOpen means the provider breaker is tripped and the call was
	// short-circuited without reaching the provider.
	ErrCircuitOpen = errors.New("provider circuit open")
	// ErrProviderNotFound is a 404-equivalent. Permanent for that item.
	ErrProviderNotFound = errors.New("provider resource not found")
	// ErrProviderTransient covers 5xx, timeouts, and network failures.
	ErrProviderTransient = errors.New("provider transient failure")
	// ErrValidation marks a malformed payload. Fails the job immediately.
	ErrValidation = errors.New("invalid payload")
	// ErrStoreConflict is a unique-constraint race; callers re-read and
	// treat the row as already present.
	ErrStoreConflict = errors.New("store conflict")
)

// Retryable reports whether a job that failed with err should be retried.
// Unknown errors retry; only classes known to be permanent do not.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation):
		return false
	case errors.Is(err, ErrProviderNotFound):
		return false
	}
	return true
}
