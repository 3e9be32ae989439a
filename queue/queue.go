// Package queue provides the in-memory FIFO that decouples message
// detection on the modem loop from message processing on the worker.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close, and by Pop once the queue is
// closed and every item has been taken.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded, concurrency-safe FIFO. Push never blocks; Pop
// blocks until an item is available.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// ready holds a token while items may be waiting. It is closed by
	// Close so every blocked Pop wakes up.
	ready chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Push appends v. It fails only when the queue has been closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.signalLocked()
	return nil
}

// Pop removes and returns the oldest item. Items pushed before Close are
// still handed out; after that Pop returns ErrClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signalLocked()
			}
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Close stops the queue. It is the worker's stop signal and is safe to
// call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

// Len reports the number of items waiting.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signalLocked() {
	if q.closed {
		return
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
