package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", ErrProviderTransient, true},
		{"rate limit timeout", ErrRateLimitTimeout, true},
		{"circuit open", ErrCircuitOpen, true},
		{"store conflict", ErrStoreConflict, true},
		{"unknown", errors.New("something else"), true},
		{"validation", ErrValidation, false},
		{"not found", ErrProviderNotFound, false},
		{"wrapped validation", fmt.Errorf("decode: %w", ErrValidation), false},
		{"wrapped not found", fmt.Errorf("attraction x: %w", ErrProviderNotFound), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(OK())
	s.Add(OK())
	s.Add(Skip("album without id", nil))
	s.Add(Skip("album x", errors.New("boom")))

	require.Equal(t, 2, s.Processed)
	require.Equal(t, 2, s.Skipped)
	require.Len(t, s.Errors, 1)
	require.Equal(t, "processed=2 skipped=2 errors=1", s.String())
}
