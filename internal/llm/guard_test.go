package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuard(2, time.Minute)
	g.now = func() time.Time { return now }

	assert.True(t, g.Allow())
	g.RecordFailure()
	assert.True(t, g.Allow())
	g.RecordFailure()
	assert.False(t, g.Allow())
	assert.Equal(t, now.Add(time.Minute), g.DisabledUntil())

	now = now.Add(2 * time.Minute)
	assert.True(t, g.Allow())

	g.RecordSuccess()
	assert.Equal(t, 0, g.Failures())
	assert.True(t, g.DisabledUntil().IsZero())
}

func TestGuard_Nil(t *testing.T) {
	var g *Guard
	assert.True(t, g.Allow())
	g.RecordFailure()
	g.RecordSuccess()
	assert.Equal(t, 0, g.Failures())
}

func TestGuarded(t *testing.T) {
	ctx := context.Background()
	genErr := errors.New("boom")
	calls := 0
	failing := GeneratorFunc(func(context.Context, string) (string, error) {
		calls++
		return "", genErr
	})

	guard := NewGuard(2, time.Hour)
	gen := Guarded(failing, guard)

	_, err := gen.Generate(ctx, "p")
	assert.ErrorIs(t, err, genErr)
	_, err = gen.Generate(ctx, "p")
	assert.ErrorIs(t, err, genErr)

	_, err = gen.Generate(ctx, "p")
	assert.ErrorIs(t, err, ErrGuardOpen)
	assert.Equal(t, 2, calls)
}

func TestGuarded_CancellationIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	guard := NewGuard(1, time.Hour)
	gen := Guarded(GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}), guard)

	_, err := gen.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, guard.Allow())
}

func TestGuarded_SuccessResets(t *testing.T) {
	guard := NewGuard(2, time.Hour)
	guard.RecordFailure()

	gen := Guarded(GeneratorFunc(func(context.Context, string) (string, error) {
		return "{}", nil
	}), guard)

	out, err := gen.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
	assert.Equal(t, 0, guard.Failures())
}
