package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dependency down")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	b := New("credentials",
		WithFailureThreshold(2),
		WithCooldown(time.Hour),
		WithStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)

	require.ErrorIs(t, b.Execute(func() error { return errDown }), errDown)
	assert.False(t, b.IsOpen())
	require.ErrorIs(t, b.Execute(func() error { return errDown }), errDown)
	assert.True(t, b.IsOpen())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.False(t, called)
	assert.True(t, IsOpenError(err))
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreaker_IgnoresErrorsOutsidePredicate(t *testing.T) {
	errRejected := errors.New("invalid credentials")
	b := New("credentials",
		WithFailureThreshold(1),
		WithFailurePredicate(func(err error) bool { return errors.Is(err, errDown) }),
	)

	for range 3 {
		require.ErrorIs(t, b.Execute(func() error { return errRejected }), errRejected)
	}
	assert.Equal(t, StateClosed, b.State())

	require.Error(t, b.Execute(func() error { return errDown }))
	assert.True(t, b.IsOpen())
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	b := New("credentials", WithFailureThreshold(1), WithCooldown(10*time.Millisecond))

	require.Error(t, b.Execute(func() error { return errDown }))
	require.True(t, b.IsOpen())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "credentials", b.Name())
}
