package infra_test

import (
	"errors"
	"testing"
	"time"

	"tillpos/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingCall() error { return errBoom }
func okCall() error      { return nil }

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failingCall), errBoom)
	}
	assert.Equal(t, infra.CBOpen, cb.State())

	// Open fast-fails without invoking the function.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, infra.ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	require.Error(t, cb.Execute(failingCall))
	require.Error(t, cb.Execute(failingCall))
	require.NoError(t, cb.Execute(okCall))
	require.Error(t, cb.Execute(failingCall))
	require.Error(t, cb.Execute(failingCall))
	assert.Equal(t, infra.CBClosed, cb.State(), "non-consecutive failures must not trip")
}

func TestCircuitBreaker_HalfOpenProbeAndRecovery(t *testing.T) {
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      20 * time.Millisecond,
	})

	require.Error(t, cb.Execute(failingCall))
	require.Equal(t, infra.CBOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, infra.CBHalfOpen, cb.State())

	// First probe succeeds but the breaker stays half-open until the
	// success threshold is met.
	require.NoError(t, cb.Execute(okCall))
	assert.Equal(t, infra.CBHalfOpen, cb.State())
	require.NoError(t, cb.Execute(okCall))
	assert.Equal(t, infra.CBClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      20 * time.Millisecond,
	})

	require.Error(t, cb.Execute(failingCall))
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, infra.CBHalfOpen, cb.State())

	require.Error(t, cb.Execute(failingCall))
	assert.Equal(t, infra.CBOpen, cb.State())
}
