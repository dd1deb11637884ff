package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_Order(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{ItemID: 1}))
	require.NoError(t, q.Push(&Task{ItemID: 2}))
	require.NoError(t, q.Push(&Task{ItemID: 3, Priority: -1}))
	require.NoError(t, q.Push(&Task{ItemID: 4}))
	require.NoError(t, q.Push(&Task{ItemID: 5, Priority: 1}))

	var got []int
	for q.Size() > 0 {
		task, err := q.TryPop()
		require.NoError(t, err)
		got = append(got, task.ItemID)
	}
	assert.Equal(t, []int{5, 1, 2, 4, 3}, got)

	_, err := q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestInMemoryQueue_Pop(t *testing.T) {
	t.Run("waits for push", func(t *testing.T) {
		q := NewInMemoryQueue()
		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = q.Push(&Task{ItemID: 7})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		task, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, task.ItemID)
		assert.False(t, task.CreatedAt.IsZero())
	})

	t.Run("context cancelled", func(t *testing.T) {
		q := NewInMemoryQueue()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := q.Pop(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("closed queue drains then reports closed", func(t *testing.T) {
		q := NewInMemoryQueue()
		require.NoError(t, q.Push(&Task{ItemID: 1}))
		require.NoError(t, q.Close())

		assert.ErrorIs(t, q.Push(&Task{ItemID: 2}), ErrQueueClosed)

		task, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, task.ItemID)

		_, err = q.Pop(context.Background())
		assert.ErrorIs(t, err, ErrQueueClosed)
		_, err = q.TryPop()
		assert.ErrorIs(t, err, ErrQueueClosed)
	})

	t.Run("close wakes blocked pop", func(t *testing.T) {
		q := NewInMemoryQueue()
		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = q.Close()
		}()

		_, err := q.Pop(context.Background())
		assert.ErrorIs(t, err, ErrQueueClosed)
	})
}
