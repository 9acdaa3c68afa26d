package apperrors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryServerErrorExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithErrorRecovery(context.Background(), func() error {
		calls++
		return ExternalService("upstream down")
	}, 3, time.Millisecond)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryClientErrorNotRetried(t *testing.T) {
	calls := 0
	err := WithErrorRecovery(context.Background(), func() error {
		calls++
		return Validation("bad input")
	}, 3, time.Millisecond)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryUntypedErrorRetried(t *testing.T) {
	calls := 0
	err := WithErrorRecovery(context.Background(), func() error {
		calls++
		return assert.AnError
	}, 3, time.Millisecond)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrySuccessStops(t *testing.T) {
	calls := 0
	err := WithErrorRecovery(context.Background(), func() error {
		calls++
		if calls < 2 {
			return Database("transient")
		}
		return nil
	}, 3, time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryBackoffDoubles(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	first := true
	WithErrorRecovery(context.Background(), func() error {
		now := time.Now()
		if !first {
			gaps = append(gaps, now.Sub(last))
		}
		first = false
		last = now
		return ExternalService("down")
	}, 3, 20*time.Millisecond)

	assert.Len(t, gaps, 2)
	assert.GreaterOrEqual(t, gaps[0], 20*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[1], 40*time.Millisecond)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := WithErrorRecovery(ctx, func() error {
		calls++
		return ExternalService("down")
	}, 3, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
