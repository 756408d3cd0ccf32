// Package deferred holds work scheduled from arbitrary goroutines for later
// execution on the loop thread.
package deferred

import (
	"sync"
	"sync/atomic"
)

// Queue is a FIFO of deferred functions. Post is safe from any goroutine;
// Drain is expected to run on a single consumer at a time.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	posted   atomic.Int64
	executed atomic.Int64
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Post appends fn. It returns false once the queue is closed.
func (q *Queue) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending = append(q.pending, fn)
	q.posted.Add(1)
	return true
}

// Drain runs everything queued at the time of the call, in order, and
// returns how many functions ran. Functions posted while draining wait for
// the next Drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
		q.executed.Add(1)
	}
	return len(batch)
}

// Len returns the number of functions waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further posts and discards anything not yet drained,
// returning how many functions were dropped.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	return dropped
}

// Stats reports lifetime totals.
func (q *Queue) Stats() (posted, executed int64) {
	return q.posted.Load(), q.executed.Load()
}
