package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errUnavailable = errors.New("connection refused")
	errMissing     = errors.New("object missing")
)

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(&Config{
		Name:             "blob",
		MaxFailures:      3,
		Timeout:          10 * time.Second,
		HalfOpenMaxCalls: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errMissing) },
	})
	cb.now = func() time.Time { return *now }
	return cb
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail(errUnavailable)), errUnavailable)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), fail(errMissing))
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail(errUnavailable))
	}
	require.Equal(t, StateOpen, cb.GetState())

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, fail(nil)))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail(errUnavailable))
	}
	now = now.Add(11 * time.Second)
	_ = cb.Execute(ctx, fail(errUnavailable))

	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}
