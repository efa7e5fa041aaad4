package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy keeps test wall time negligible
func fastPolicy(attempts int, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   retryable,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3, nil).Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := fastPolicy(3, nil).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	sentinel := errors.New("still failing")

	calls := 0
	err := fastPolicy(3, nil).Do(context.Background(), func() error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	sentinel := errors.New("bad input")

	calls := 0
	err := fastPolicy(5, func(error) bool { return false }).Do(context.Background(), func() error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValueReturnsResult(t *testing.T) {
	calls := 0
	value, err := DoValue(context.Background(), fastPolicy(3, nil), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 2, calls)
}

func TestDoValuePropagatesFinalError(t *testing.T) {
	sentinel := errors.New("down")

	value, err := DoValue(context.Background(), fastPolicy(2, nil), func() (int, error) {
		return 0, sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Zero(t, value)
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, p.MaxDelay)
}
