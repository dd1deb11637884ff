package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrGuardOpen = errors.New("model calls disabled after repeated failures")

// Guard disables model calls for a cooldown once maxFailures calls in a row
// have failed. A nil Guard allows everything.
type Guard struct {
	mu            sync.Mutex
	maxFailures   int
	cooldown      time.Duration
	failures      int
	disabledUntil time.Time
	now           func() time.Time
}

func NewGuard(maxFailures int, cooldown time.Duration) *Guard {
	return &Guard{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

func (g *Guard) Allow() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disabledUntil.IsZero() {
		return true
	}
	return g.now().After(g.disabledUntil)
}

func (g *Guard) RecordFailure() {
	if g == nil || g.maxFailures <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	if g.failures >= g.maxFailures {
		g.disabledUntil = g.now().Add(g.cooldown)
	}
}

func (g *Guard) RecordSuccess() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures = 0
	g.disabledUntil = time.Time{}
}

func (g *Guard) DisabledUntil() time.Time {
	if g == nil {
		return time.Time{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabledUntil
}

func (g *Guard) Failures() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// Guarded wraps a generator with a failure guard. Context cancellation is not
// counted as a model failure.
func Guarded(gen Generator, guard *Guard) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if !guard.Allow() {
			return "", fmt.Errorf("%w until %s", ErrGuardOpen, guard.DisabledUntil().Format(time.RFC3339))
		}

		out, err := gen.Generate(ctx, prompt)
		switch {
		case err == nil:
			guard.RecordSuccess()
		case ctx.Err() == nil:
			guard.RecordFailure()
		}
		return out, err
	})
}
