//go:build linux

package bridge

import (
	"time"

	"github.com/Iron-Ham/loopbridge/internal/channel"
	"github.com/Iron-Ham/loopbridge/internal/event"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

// DefaultSendTimeout bounds how long RequestDestruction waits for room in a
// full pipe when called off the loop thread.
const DefaultSendTimeout = time.Second

// Option configures a Bridge.
type Option func(*config)

type config struct {
	logger       *logging.Logger
	bus          *event.Bus
	runner       func()
	quit         func()
	destroyHooks []func()
	openChannel  channel.Opener
	sendTimeout  time.Duration
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithBus publishes lifecycle events to bus.
func WithBus(bus *event.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}

// WithRunner adds an external pending-work runner. It runs on the loop
// thread after the bridge's own deferred queue has been drained, each time
// an ExecutePendingFunctions command is dispatched.
func WithRunner(fn func()) Option {
	return func(c *config) {
		c.runner = fn
	}
}

// WithQuitHandler replaces what happens when the application, or a fatal
// channel condition, asks the owner to quit. The handler runs on the loop
// thread and is expected to lead to OnOwnerDestroy. The default schedules
// OnOwnerDestroy on the loop thread, or calls it directly when the channel
// can no longer deliver.
func WithQuitHandler(fn func()) Option {
	return func(c *config) {
		c.quit = fn
	}
}

// WithDestroyHook registers fn to run once, after the bridge has released
// everything. Hooks run in registration order.
func WithDestroyHook(fn func()) Option {
	return func(c *config) {
		if fn != nil {
			c.destroyHooks = append(c.destroyHooks, fn)
		}
	}
}

// WithChannelOpener replaces channel.Open.
func WithChannelOpener(open channel.Opener) Option {
	return func(c *config) {
		c.openChannel = open
	}
}

// WithSendTimeout sets how long an off-loop RequestDestruction waits for
// room in a full pipe. Non-positive values keep the default.
func WithSendTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}
