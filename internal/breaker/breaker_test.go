package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"artist-sync/internal/pipeline"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	br := New(Settings{
		Name:                "catalog-test-trip",
		ConsecutiveFailures: 3,
		Cooldown:            time.Minute,
		HalfOpenMax:         1,
	})

	boom := errors.New("provider down")
	for i := 0; i < 3; i++ {
		_, err := br.Execute(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, "open", br.State())

	// While open, calls fail fast without touching the provider.
	invoked := false
	_, err := br.Execute(func() (any, error) {
		invoked = true
		return nil, nil
	})
	require.ErrorIs(t, err, pipeline.ErrCircuitOpen)
	require.False(t, invoked)
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	br := New(Settings{
		Name:                "catalog-test-reset",
		ConsecutiveFailures: 3,
		Cooldown:            time.Minute,
	})

	boom := errors.New("blip")
	for i := 0; i < 2; i++ {
		_, _ = br.Execute(func() (any, error) { return nil, boom })
	}
	_, err := br.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)

	// Two more failures: still short of a fresh run of three.
	for i := 0; i < 2; i++ {
		_, _ = br.Execute(func() (any, error) { return nil, boom })
	}
	require.Equal(t, "closed", br.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	br := New(Settings{
		Name:                "catalog-test-probe",
		ConsecutiveFailures: 2,
		Cooldown:            30 * time.Millisecond,
		HalfOpenMax:         1,
	})

	boom := errors.New("provider down")
	for i := 0; i < 2; i++ {
		_, _ = br.Execute(func() (any, error) { return nil, boom })
	}
	require.Equal(t, "open", br.State())

	time.Sleep(50 * time.Millisecond)

	// First call after the cooldown is the probe; success closes the breaker.
	res, err := br.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, "closed", br.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	br := New(Settings{
		Name:                "catalog-test-reopen",
		ConsecutiveFailures: 2,
		Cooldown:            30 * time.Millisecond,
	})

	boom := errors.New("still down")
	for i := 0; i < 2; i++ {
		_, _ = br.Execute(func() (any, error) { return nil, boom })
	}
	time.Sleep(50 * time.Millisecond)

	_, err := br.Execute(func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, "open", br.State())
}
