//go:build linux

package bridge

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/channel"
	"github.com/Iron-Ham/loopbridge/internal/deferred"
	"github.com/Iron-Ham/loopbridge/internal/errors"
	"github.com/Iron-Ham/loopbridge/internal/event"
	"github.com/Iron-Ham/loopbridge/internal/logging"
	"github.com/Iron-Ham/loopbridge/internal/looper"
)

// Bridge hosts one Application on a loop thread and carries commands to that
// thread from any goroutine.
//
// Fields marked "loop thread only" are touched exclusively by the callback
// and by code that runs on the loop thread. The registration flag and state
// are atomics so they can be observed from other goroutines without a race,
// but the flag only goes from true to false on the loop thread (or in the
// single deletion routine). While the flag is true, deletion happens only
// inside a loop callback.
type Bridge struct {
	id     string
	appID  string
	logger *logging.Logger
	bus    *event.Bus

	loop   Loop
	ch     *channel.Channel
	readFd int

	registered atomic.Bool
	state      atomic.Int32
	destroyed  atomic.Bool
	ownerDone  atomic.Bool
	hasQuit    atomic.Bool
	// destroyPending is set before a Destroy command is sent. The next
	// callback deletes the bridge even if the command itself never made it
	// into a full pipe.
	destroyPending atomic.Bool

	app   app.Application // loop thread only
	queue *deferred.Queue

	runner       func()
	quit         func()
	destroyHooks []func()
	sendTimeout  time.Duration

	requests     atomic.Int64
	coalesced    atomic.Int64
	sendFailures atomic.Int64
	runs         atomic.Int64
}

// Create builds a Bridge on the calling thread, which must own the loop
// returned by p. Resources are acquired in order: loop reference, channel,
// loop registration, application. If any step or the application's
// OnInitialize fails, everything acquired so far is released in reverse
// order and no Bridge is returned.
func Create(p ContextProvider, opts ...Option) (*Bridge, error) {
	cfg := &config{
		logger:      logging.NopLogger(),
		openChannel: channel.Open,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.openChannel == nil {
		cfg.openChannel = channel.Open
	}

	b := &Bridge{
		id:           uuid.NewString(),
		bus:          cfg.bus,
		readFd:       -1,
		queue:        deferred.New(),
		runner:       cfg.runner,
		destroyHooks: cfg.destroyHooks,
		sendTimeout:  cfg.sendTimeout,
	}
	if named, ok := p.(interface{ AppName() string }); ok {
		b.appID = named.AppName()
	}
	b.logger = cfg.logger.WithBridge(b.id).WithComponent("bridge")
	b.quit = cfg.quit
	if b.quit == nil {
		b.quit = b.defaultQuit
	}

	b.setState(StateInitializing)

	loop, err := p.Loop()
	if err == nil && !loop.IsOwnerThread() {
		err = errors.ErrNotOwnerThread
	}
	if err != nil {
		return nil, b.abort(errors.NewResourceAcquisitionError(errors.StageLoop, err).WithBridgeID(b.id))
	}
	loop.Acquire()
	b.loop = loop

	ch, err := cfg.openChannel()
	if err != nil {
		return nil, b.abort(errors.NewResourceAcquisitionError(errors.StageChannel, err).WithBridgeID(b.id))
	}
	b.ch = ch
	b.readFd = ch.ReadFd()

	if err := loop.AddFd(b.readFd, looper.EventInput, b.callback); err != nil {
		return nil, b.abort(errors.NewResourceAcquisitionError(errors.StageRegistration, err).WithBridgeID(b.id))
	}
	b.registered.Store(true)

	creator, err := p.AppCreator()
	if err != nil {
		return nil, b.abort(errors.NewResourceAcquisitionError(errors.StageAppCreator, err).WithBridgeID(b.id))
	}
	a := creator(b)
	if a == nil {
		return nil, b.abort(errors.NewResourceAcquisitionError(errors.StageAppCreator,
			errors.New("creator returned no application")).WithBridgeID(b.id))
	}
	b.app = a

	ok := a.OnInitialize()
	b.publish(event.NewAppInitializedEvent(b.id, b.appID, ok))
	if !ok {
		return nil, b.abort(errors.Wrapf(errors.ErrAppInitFailed, "bridge %s", b.id))
	}

	b.setState(StateActive)
	b.logger.Info("bridge active", "app", b.appID, "fd", b.readFd)
	return b, nil
}

// abort rolls back a failed construction and returns err.
func (b *Bridge) abort(err error) error {
	b.logErr("bridge construction failed", err)
	b.destroy(true)
	return err
}

// ID returns the bridge identifier used in logs and events.
func (b *Bridge) ID() string { return b.id }

// State returns the current lifecycle state.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Registered reports whether the channel is bound to the loop.
func (b *Bridge) Registered() bool { return b.registered.Load() }

// Stats returns lifetime counters.
func (b *Bridge) Stats() Stats {
	_, executed := b.queue.Stats()
	return Stats{
		Requests:          b.requests.Load(),
		Coalesced:         b.coalesced.Load(),
		SendFailures:      b.sendFailures.Load(),
		RunnerInvocations: b.runs.Load(),
		Executed:          executed,
	}
}

// Logger returns the bridge's logger.
func (b *Bridge) Logger() *logging.Logger { return b.logger }

// IsInLoopThread reports whether the caller runs on the loop thread.
func (b *Bridge) IsInLoopThread() bool {
	return b.loop != nil && b.loop.IsOwnerThread()
}

// RequestFunctionExecution asks the loop thread to run pending work. It is
// safe from any goroutine and never blocks.
//
// A full pipe holds only ExecutePendingFunctions records apart from at most
// one Destroy, so a request that finds it full is already covered by one
// that will be dispatched: it is counted as coalesced. Other send failures
// are logged and not retried; any later successful request drains the same
// queue.
func (b *Bridge) RequestFunctionExecution() {
	b.requests.Add(1)
	err := b.ch.Send(channel.ExecutePendingFunctions)
	switch {
	case err == nil:
		b.loop.Wake()
	case errors.Is(err, errors.ErrWouldBlock):
		b.coalesced.Add(1)
		b.loop.Wake()
	case errors.Is(err, errors.ErrChannelClosed):
		b.logger.Debug("pending work requested after channel closed")
	default:
		b.sendFailures.Add(1)
		b.logErr("failed to request pending work", err)
	}
}

// CallInLoopThreadDeferred queues fn for the loop thread and requests its
// execution. It reports false once the bridge has been destroyed.
func (b *Bridge) CallInLoopThreadDeferred(fn func()) bool {
	if !b.queue.Post(fn) {
		return false
	}
	b.RequestFunctionExecution()
	return true
}

// RequestDestruction asks for the bridge to be deleted. It is safe from any
// goroutine and any number of times; exactly one deletion happens.
//
// When the channel is no longer registered no callback can still be pending
// and deletion runs here, synchronously. Otherwise a Destroy command is sent
// and deletion happens inside the next callback. Off the loop thread the
// send waits up to the send timeout for room in a full pipe. On the loop
// thread it cannot wait, since only that thread empties the pipe; a full pipe
// there already guarantees a callback, which sees the pending request.
func (b *Bridge) RequestDestruction() {
	if b.destroyed.Load() {
		return
	}
	if !b.registered.Load() {
		b.destroy(true)
		return
	}

	b.destroyPending.Store(true)
	onLoop := b.IsInLoopThread()
	var err error
	if onLoop {
		err = b.ch.Send(channel.Destroy)
	} else {
		err = b.ch.SendWait(channel.Destroy, b.sendTimeout)
	}

	switch {
	case err == nil:
	case errors.Is(err, errors.ErrChannelClosed):
		// Deletion already ran or is running.
		return
	case errors.Is(err, errors.ErrWouldBlock):
		b.logErr("destroy command deferred to the next callback", err)
	case onLoop:
		// Synchronous fallback, kept to the loop thread where no callback
		// for this bridge can be running concurrently.
		b.sendFailures.Add(1)
		b.logErr("failed to send destroy, destroying synchronously", err)
		b.destroy(true)
		return
	default:
		b.sendFailures.Add(1)
		b.logErr("failed to send destroy, deletion waits for the loop thread", err)
	}
	b.loop.Wake()
}

// OnOwnerDestroy tears down the application and requests destruction. The
// owner calls it once, on the loop thread.
func (b *Bridge) OnOwnerDestroy() {
	if !b.IsInLoopThread() {
		b.logger.Error("OnOwnerDestroy called off the loop thread")
		return
	}
	if !b.ownerDone.CompareAndSwap(false, true) {
		b.logger.Warn("OnOwnerDestroy called more than once")
		return
	}
	b.enterShutdown()
	b.teardownApp()
	b.RequestDestruction()
}

// QuitFromLoopThread asks the owner to shut the application down. Pending
// work runs once more first. Only the first call has any effect.
func (b *Bridge) QuitFromLoopThread() {
	b.quitFromLoopThread(false)
}

func (b *Bridge) quitFromLoopThread(teardown bool) {
	if !b.hasQuit.CompareAndSwap(false, true) {
		if teardown {
			b.teardownApp()
		}
		return
	}
	appID := b.appID
	b.runPending()
	if teardown {
		b.teardownApp()
	}
	b.publish(event.NewAppQuitEvent(b.id, appID))
	b.logger.Info("quit requested", "app", appID)
	b.quit()
}

func (b *Bridge) defaultQuit() {
	if b.registered.Load() && b.CallInLoopThreadDeferred(b.OnOwnerDestroy) {
		return
	}
	b.OnOwnerDestroy()
}

// callback is the loop registration. It runs on the loop thread and reads at
// most one command per invocation. Returning false drops the registration.
func (b *Bridge) callback(fd int, events looper.Events) bool {
	if b.destroyed.Load() || !b.registered.Load() {
		b.logger.Debug("ignoring callback for unregistered channel", "fd", fd, "events", events.String())
		return false
	}

	if events.Fatal() {
		b.fatal(errors.NewLoopFdError(fd, events.String()).WithBridgeID(b.id))
		return false
	}
	if !events.Has(looper.EventInput) {
		return true
	}

	cmd, err := b.ch.Receive()
	switch {
	case err != nil && b.destroyed.Load():
		return false
	case err != nil && errors.IsTerminal(err):
		b.fatal(err)
		return false
	case err != nil:
		b.logErr("ignoring channel anomaly", err)
	case cmd == channel.Destroy:
		// destroy claims the deletion before it clears the flag, so a
		// concurrent RequestDestruction cannot delete off the loop thread.
		b.destroy(false)
		return false
	case cmd == channel.ExecutePendingFunctions:
		b.runPending()
	}

	if b.destroyed.Load() {
		return false
	}
	if b.destroyPending.Load() {
		b.destroy(false)
		return false
	}
	return true
}

// fatal handles a descriptor or read failure the same way as an owner
// teardown: the application is destroyed and the owner is asked to quit.
func (b *Bridge) fatal(err error) {
	b.logger.Error("fatal channel condition", "error", err, "severity", errors.GetSeverity(err).String())
	b.registered.Store(false)
	b.enterShutdown()
	b.publish(event.NewBridgeFatalEvent(b.id, err.Error()))
	b.quitFromLoopThread(true)
}

func (b *Bridge) runPending() {
	n := b.queue.Drain()
	if b.runner != nil {
		b.runner()
	}
	b.runs.Add(1)
	b.publish(event.NewPendingExecutedEvent(b.id, n))
}

// teardownApp runs InvokeOnDestroy at most once.
func (b *Bridge) teardownApp() {
	a := b.app
	if a == nil {
		return
	}
	b.app = nil
	a.InvokeOnDestroy()
	b.publish(event.NewAppDestroyedEvent(b.id, b.appID))
	b.logger.Info("application destroyed", "app", b.appID)
}

// destroy is the only place a Bridge releases its resources. It runs once.
//
// The application is only ever torn down on the loop thread. destroy runs
// elsewhere only when the registration was dropped by a fatal condition, and
// the fatal path tears the application down itself.
func (b *Bridge) destroy(synchronous bool) {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}
	if b.State() != StateInitializing {
		b.enterShutdown()
	}

	if b.IsInLoopThread() {
		b.teardownApp()
	} else {
		b.logger.Debug("leaving application teardown to the loop thread")
	}
	if b.registered.Swap(false) {
		b.loop.RemoveFd(b.readFd)
	}
	if dropped := b.queue.Close(); dropped > 0 {
		b.logger.Warn("discarded pending work", "count", dropped)
	}
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			b.logger.Warn("failed to close channel", "error", err)
		}
	}
	if b.loop != nil {
		b.loop.Release()
	}

	b.setState(StateDestroyed)
	b.publish(event.NewBridgeDestroyedEvent(b.id, synchronous))
	b.logger.Info("bridge destroyed", "synchronous", synchronous)

	for _, hook := range b.destroyHooks {
		hook()
	}
}

func (b *Bridge) enterShutdown() {
	if b.state.CompareAndSwap(int32(StateActive), int32(StateShuttingDown)) {
		b.changed(StateActive, StateShuttingDown)
	}
}

func (b *Bridge) setState(to State) {
	from := State(b.state.Swap(int32(to)))
	if from != to {
		b.changed(from, to)
	}
}

func (b *Bridge) changed(from, to State) {
	b.logger.Debug("state changed", "from", from.String(), "to", to.String())
	b.publish(event.NewStateChangedEvent(b.id, from.String(), to.String()))
}

// logErr reports err at the level its severity calls for.
func (b *Bridge) logErr(msg string, err error, args ...any) {
	args = append(args, "error", err)
	switch errors.GetSeverity(err) {
	case errors.SeverityDebug:
		b.logger.Debug(msg, args...)
	case errors.SeverityInfo:
		b.logger.Info(msg, args...)
	case errors.SeverityWarning:
		b.logger.Warn(msg, args...)
	default:
		b.logger.Error(msg, args...)
	}
}

func (b *Bridge) publish(e event.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}
