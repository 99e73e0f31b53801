package scanner

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("result queue closed")

// DefaultQueueSize is used when NewResultQueue is given a non-positive size.
const DefaultQueueSize = 256

// ResultQueue hands positive findings from worker goroutines to the core
// loop. Any number of goroutines may Submit; exactly one goroutine (the core
// loop) calls Drain.
type ResultQueue struct {
	ch        chan ScanResult
	closed    chan struct{}
	closeOnce sync.Once
}

// NewResultQueue constructs a queue buffering up to size results.
func NewResultQueue(size int) *ResultQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &ResultQueue{
		ch:     make(chan ScanResult, size),
		closed: make(chan struct{}),
	}
}

// Submit enqueues r. It blocks while the queue is full, which only ever
// stalls the submitting worker, never the core loop.
func (q *ResultQueue) Submit(ctx context.Context, r ScanResult) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- r:
		return nil
	}
}

// Drain passes every result queued at the time of the call to fn and
// returns how many were consumed. Each result is delivered exactly once.
func (q *ResultQueue) Drain(fn func(ScanResult)) int {
	n := len(q.ch)
	for i := 0; i < n; i++ {
		select {
		case r := <-q.ch:
			fn(r)
		default:
			return i
		}
	}
	return n
}

// Len returns the number of queued results.
func (q *ResultQueue) Len() int { return len(q.ch) }

// Close stops accepting results. Results already queued can still be drained.
func (q *ResultQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
