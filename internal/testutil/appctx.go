package testutil

import (
	"sync/atomic"

	"github.com/Iron-Ham/loopbridge/internal/deferred"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

// AppContext is an in-memory application context. Deferred calls queue up
// until the test runs them with RunPending, which stands in for the loop
// thread.
type AppContext struct {
	queue  *deferred.Queue
	quits  atomic.Int32
	logger *logging.Logger
}

// NewAppContext returns an AppContext with a no-op logger.
func NewAppContext() *AppContext {
	return &AppContext{queue: deferred.New(), logger: logging.NopLogger()}
}

// CallInLoopThreadDeferred queues fn.
func (c *AppContext) CallInLoopThreadDeferred(fn func()) bool {
	return c.queue.Post(fn)
}

// QuitFromLoopThread counts quit requests.
func (c *AppContext) QuitFromLoopThread() { c.quits.Add(1) }

// IsInLoopThread always reports true.
func (c *AppContext) IsInLoopThread() bool { return true }

// Logger returns the context logger.
func (c *AppContext) Logger() *logging.Logger { return c.logger }

// RunPending runs the queued calls and returns how many ran.
func (c *AppContext) RunPending() int { return c.queue.Drain() }

// Pending returns the number of queued calls.
func (c *AppContext) Pending() int { return c.queue.Len() }

// Quits returns the number of QuitFromLoopThread calls.
func (c *AppContext) Quits() int { return int(c.quits.Load()) }

// Close makes later CallInLoopThreadDeferred calls fail, like a destroyed
// bridge.
func (c *AppContext) Close() { c.queue.Close() }
