package notify

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("notification queue closed")

// Queue is an unbounded FIFO of jobs shared between request handlers and the worker.
type Queue struct {
	mu     sync.Mutex
	items  []Job
	ready  chan struct{} // holds at most one wake-up token
	closed bool
	done   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue blocks until a job is available, ctx is done, or the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = Job{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return job, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Job{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close rejects further jobs. Jobs already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
