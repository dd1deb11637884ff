package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_Wait(t *testing.T) {
	t.Run("first action does not wait", func(t *testing.T) {
		r := NewFixedDelay(time.Hour)
		start := time.Now()
		require.NoError(t, r.Wait(context.Background()))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("keeps delay between actions", func(t *testing.T) {
		r := NewFixedDelay(50 * time.Millisecond)
		require.NoError(t, r.Wait(context.Background()))

		start := time.Now()
		require.NoError(t, r.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("zero delay never waits", func(t *testing.T) {
		r := NewFixedDelay(0)
		for i := 0; i < 3; i++ {
			require.NoError(t, r.Wait(context.Background()))
		}
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		r := NewFixedDelay(time.Hour)
		require.NoError(t, r.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
	})
}

func TestSimpleRateLimiter_SetDelay(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 2*time.Second)
	r.SetDelay(3*time.Second, time.Second)

	minDelay, maxDelay := r.Delay()
	assert.Equal(t, 3*time.Second, minDelay)
	assert.Equal(t, 3*time.Second, maxDelay)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	t.Run("backs off after repeated errors", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
		a.RecordError()
		a.RecordError()
		minDelay, _ := a.Delay()
		assert.Equal(t, 2*time.Second, minDelay)

		a.RecordError()
		minDelay, maxDelay := a.Delay()
		assert.Equal(t, 3*time.Second, minDelay)
		assert.Equal(t, 6*time.Second, maxDelay)
	})

	t.Run("zero delay starts backing off at one second", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(0, 0)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		minDelay, _ := a.Delay()
		assert.Equal(t, time.Second, minDelay)
	})

	t.Run("recovers but not below floor", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		for i := 0; i < 60; i++ {
			a.RecordSuccess()
		}
		minDelay, maxDelay := a.Delay()
		assert.Equal(t, 2*time.Second, minDelay)
		assert.GreaterOrEqual(t, maxDelay, minDelay)
	})
}

func TestTokenBucketRateLimiter(t *testing.T) {
	t.Run("allows burst then blocks", func(t *testing.T) {
		tb := NewTokenBucketRateLimiter(2, time.Hour)
		require.NoError(t, tb.Wait(context.Background()))
		require.NoError(t, tb.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
	})

	t.Run("refills over time", func(t *testing.T) {
		now := time.Now()
		tb := NewTokenBucketRateLimiter(3, time.Second)
		tb.now = func() time.Time { return now }
		tb.lastRefill = now

		for i := 0; i < 3; i++ {
			require.NoError(t, tb.Wait(context.Background()))
		}
		assert.Equal(t, 0, tb.Tokens())

		now = now.Add(2500 * time.Millisecond)
		assert.Equal(t, 2, tb.Tokens())

		now = now.Add(time.Hour)
		assert.Equal(t, 3, tb.Tokens())
	})

	t.Run("per minute budget", func(t *testing.T) {
		tb := NewPerMinute(30)
		assert.Equal(t, 2*time.Second, tb.refillRate)
		assert.Equal(t, 30, tb.Tokens())
	})
}
