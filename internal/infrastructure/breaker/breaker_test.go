package breaker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
)

func testSettings() Settings {
	return Settings{ConsecutiveFailures: 3, CoolDown: 50 * time.Millisecond, HalfOpenRequests: 1}
}

func TestBreakerOpensAfterConsecutiveFailuresAndShortCircuits(t *testing.T) {
	cb := New("inventory", testSettings(), nil)
	var calls atomic.Int32
	failing := func() (string, error) {
		calls.Add(1)
		return "", fault.Unavailable("inventory", errors.New("503"))
	}

	for i := 0; i < 3; i++ {
		_, err := Execute(cb, failing)
		require.ErrorIs(t, err, fault.ErrCollaboratorUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := Execute(cb, failing)
	assert.ErrorIs(t, err, fault.ErrCollaboratorUnavailable)
	assert.True(t, IsOpen(err))
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach the collaborator")
}

func TestBreakerAllowsExactlyOneTrialAfterCoolDown(t *testing.T) {
	cb := New("inventory", testSettings(), nil)
	for i := 0; i < 3; i++ {
		_, _ = Execute(cb, func() (int, error) { return 0, fault.Unavailable("inventory", nil) })
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())
	time.Sleep(60 * time.Millisecond)

	release := make(chan struct{})
	entered := make(chan struct{})
	var trials atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := Execute(cb, func() (int, error) {
			trials.Add(1)
			close(entered)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-entered

	_, err := Execute(cb, func() (int, error) {
		trials.Add(1)
		return 1, nil
	})
	assert.True(t, IsOpen(err), "second call while half-open must short-circuit")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), trials.Load())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBusinessRejectionsDoNotTrip(t *testing.T) {
	cb := New("inventory", testSettings(), nil)
	for i := 0; i < 10; i++ {
		_, err := Execute(cb, func() (int, error) { return 0, fault.Rejected("inventory", "insufficient stock") })
		require.ErrorIs(t, err, fault.ErrBusinessRejection)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestFailedTrialReopens(t *testing.T) {
	cb := New("inventory", testSettings(), nil)
	for i := 0; i < 3; i++ {
		_, _ = Execute(cb, func() (int, error) { return 0, fault.Unavailable("inventory", nil) })
	}
	time.Sleep(60 * time.Millisecond)
	_, _ = Execute(cb, func() (int, error) { return 0, fault.Unavailable("inventory", nil) })
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}
