// Package ratelimit paces crawl items and model requests.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SimpleRateLimiter keeps at least a delay between consecutive actions. The
// delay is drawn from [minDelay, maxDelay). The first action never waits.
type SimpleRateLimiter struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	now        func() time.Time
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		now:      time.Now,
	}
}

// NewFixedDelay waits exactly d between actions.
func NewFixedDelay(d time.Duration) *SimpleRateLimiter {
	return NewSimpleRateLimiter(d, d)
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		elapsed := r.now().Sub(r.lastAction)
		if delay := r.calculateDelay(); elapsed < delay {
			if err := sleep(ctx, delay-elapsed); err != nil {
				return err
			}
		}
	}

	r.lastAction = r.now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(minDelay, maxDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	r.minDelay = minDelay
	r.maxDelay = maxDelay
}

func (r *SimpleRateLimiter) Delay() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	return r.minDelay + rand.N(r.maxDelay-r.minDelay)
}

// AdaptiveRateLimiter stretches its delay after repeated failures and
// shrinks it back towards the configured floor after a run of successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	floor         time.Duration
	ceiling       time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		floor:             minDelay,
		ceiling:           2 * time.Minute,
		maxErrorCount:     3,
		backoffFactor:     1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.maxDelay -= a.minDelay - newMin
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)
		if newMin == 0 {
			newMin = time.Second
			newMax = time.Second
		}
		if newMax > a.ceiling {
			newMax = a.ceiling
		}
		if newMin > newMax {
			newMin = newMax
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// TokenBucketRateLimiter allows bursts of up to maxTokens actions and refills
// one token every refillRate.
type TokenBucketRateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	now        func() time.Time
}

func NewTokenBucketRateLimiter(maxTokens int, refillRate time.Duration) *TokenBucketRateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &TokenBucketRateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// NewPerMinute allows n actions per minute.
func NewPerMinute(n int) *TokenBucketRateLimiter {
	if n < 1 {
		n = 1
	}
	return NewTokenBucketRateLimiter(n, time.Minute/time.Duration(n))
}

func (t *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		t.refill()
		if t.tokens > 0 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		wait := t.refillRate - t.now().Sub(t.lastRefill)
		t.mu.Unlock()

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Tokens returns the tokens currently available.
func (t *TokenBucketRateLimiter) Tokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refill()
	return t.tokens
}

func (t *TokenBucketRateLimiter) refill() {
	if t.refillRate <= 0 {
		t.tokens = t.maxTokens
		return
	}
	elapsed := t.now().Sub(t.lastRefill)
	tokensToAdd := int(elapsed / t.refillRate)

	if tokensToAdd > 0 {
		t.tokens += tokensToAdd
		if t.tokens > t.maxTokens {
			t.tokens = t.maxTokens
		}
		t.lastRefill = t.lastRefill.Add(time.Duration(tokensToAdd) * t.refillRate)
	}
}
