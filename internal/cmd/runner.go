//go:build linux

package cmd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/bridge"
	"github.com/Iron-Ham/loopbridge/internal/errors"
	"github.com/Iron-Ham/loopbridge/internal/event"
	"github.com/Iron-Ham/loopbridge/internal/logging"
	"github.com/Iron-Ham/loopbridge/internal/looper"
)

// defaultTeardownTimeout bounds how long the owner waits for destruction
// after asking for it.
const defaultTeardownTimeout = 5 * time.Second

// Why a run ended.
const (
	reasonAppQuit     = "application quit"
	reasonTimeout     = "run time elapsed"
	reasonInterrupted = "interrupted"
)

type runOptions struct {
	AppID             string
	Registry          *app.Registry
	Workers           int
	RequestsPerWorker int
	Logger            *logging.Logger
	TeardownTimeout   time.Duration
}

type runResult struct {
	BridgeID  string
	App       string
	Reason    string
	Duration  time.Duration
	Workers   int
	Submitted int64
	Completed int64
	Stats     bridge.Stats
	Events    map[string]int
}

// eventCounter tallies bus events by type.
type eventCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *eventCounter) record(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[e.EventType()]++
}

func (c *eventCounter) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

type loopHandle struct {
	looper *looper.Looper
	bridge *bridge.Bridge
	err    error
}

// runBridge hosts opts.AppID on a new loop thread, fans deferred work out
// from a worker pool, and tears the bridge down as its owner when ctx ends.
// It returns once the bridge is destroyed and the loop thread has exited.
func runBridge(ctx context.Context, opts runOptions) (*runResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	teardownTimeout := opts.TeardownTimeout
	if teardownTimeout <= 0 {
		teardownTimeout = defaultTeardownTimeout
	}

	start := time.Now()
	bus := event.NewBusWithLogger(logger)
	counter := &eventCounter{counts: make(map[string]int)}
	bus.SubscribeAll(counter.record)

	destroyed := make(chan struct{})
	ready := make(chan loopHandle, 1)
	loopDone := make(chan error, 1)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	go func() {
		l, err := looper.Prepare()
		if err != nil {
			ready <- loopHandle{err: err}
			loopDone <- nil
			return
		}
		l.SetLogger(logger.WithComponent("looper"))

		b, err := bridge.Create(
			bridge.ThreadProvider{AppID: opts.AppID, Registry: opts.Registry},
			bridge.WithLogger(logger),
			bridge.WithBus(bus),
			bridge.WithDestroyHook(func() { close(destroyed) }),
		)
		ready <- loopHandle{looper: l, bridge: b, err: err}

		var loopErr error
		if err == nil {
			loopErr = l.Loop(loopCtx)
		}
		if err := l.Unprepare(); err != nil && loopErr == nil {
			loopErr = err
		}
		loopDone <- loopErr
	}()

	h := <-ready
	if h.err != nil {
		<-loopDone
		return nil, h.err
	}
	b := h.bridge

	var submitted, completed atomic.Int64
	p := pool.New().WithContext(ctx).WithMaxGoroutines(max(opts.Workers, 1))
	for w := range opts.Workers {
		p.Go(func(ctx context.Context) error {
			for range opts.RequestsPerWorker {
				if ctx.Err() != nil {
					return nil
				}
				if !b.CallInLoopThreadDeferred(func() { completed.Add(1) }) {
					logger.Debug("bridge stopped accepting work", "worker", w)
					return nil
				}
				submitted.Add(1)
			}
			return nil
		})
	}
	_ = p.Wait()
	logger.Info("workers finished", "submitted", submitted.Load())

	reason := reasonAppQuit
	select {
	case <-destroyed:
	default:
		select {
		case <-destroyed:
		case <-ctx.Done():
			reason = reasonInterrupted
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = reasonTimeout
			}
			logger.Info("owner teardown", "reason", reason)
			if err := h.looper.Post(b.OnOwnerDestroy); err != nil {
				logger.Warn("failed to schedule owner teardown", "error", err)
			}
			select {
			case <-destroyed:
			case <-time.After(teardownTimeout):
				stopLoop()
				<-loopDone
				return nil, fmt.Errorf("bridge %s was not destroyed within %s", b.ID(), teardownTimeout)
			}
		}
	}

	stopLoop()
	if err := <-loopDone; err != nil {
		logger.Warn("loop thread exited with error", "error", err)
	}

	return &runResult{
		BridgeID:  b.ID(),
		App:       opts.AppID,
		Reason:    reason,
		Duration:  time.Since(start),
		Workers:   opts.Workers,
		Submitted: submitted.Load(),
		Completed: completed.Load(),
		Stats:     b.Stats(),
		Events:    counter.snapshot(),
	}, nil
}
