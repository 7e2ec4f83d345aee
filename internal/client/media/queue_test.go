package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	_, ok := q.TryPop()
	assert.False(t, ok)

	for i := range 5 {
		q.Push(i)
	}
	assert.Equal(t, 5, q.Len())
	for i := range 5 {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = q.TryPop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const n = 10000
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			q.Push(i)
		}
	}()

	for want := range n {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	wg.Wait()
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
