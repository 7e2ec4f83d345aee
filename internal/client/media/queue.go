// Package media moves call audio and video between local devices and the
// relay. Device access sits behind small interfaces; the realtime audio
// callback only ever touches the non-blocking queues.
package media

import (
	"context"
	"sync/atomic"
)

type node[T any] struct {
	v    T
	next atomic.Pointer[node[T]]
}

// Queue is an unbounded FIFO for exactly one producer and one consumer
// goroutine. Push and TryPop never block.
type Queue[T any] struct {
	head *node[T] // consumer side, always a consumed sentinel
	tail *node[T] // producer side
	n    atomic.Int64
	wake chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	sentinel := &node[T]{}
	return &Queue[T]{head: sentinel, tail: sentinel, wake: make(chan struct{}, 1)}
}

func (q *Queue[T]) Push(v T) {
	n := &node[T]{v: v}
	q.tail.next.Store(n)
	q.tail = n
	q.n.Add(1)
	q.Wake()
}

func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	next := q.head.next.Load()
	if next == nil {
		return zero, false
	}
	v := next.v
	next.v = zero
	q.head = next
	q.n.Add(-1)
	return v, true
}

// Pop waits for an item or for ctx to end.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		if err := q.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Wait blocks until the next Push or Wake. A wake that arrived before the
// call is consumed immediately.
func (q *Queue[T]) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.wake:
		return nil
	}
}

// Wake releases a pending Wait without pushing.
func (q *Queue[T]) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) Len() int { return int(q.n.Load()) }
