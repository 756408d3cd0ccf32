// Package heartbeat provides an application that schedules a beat on the
// loop thread at a fixed interval. It exercises the deferred call path from a
// goroutine that is not the loop thread.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

// ID is the registry identifier.
const ID = "heartbeat"

// Config controls the beat.
type Config struct {
	Interval time.Duration
	// MaxBeats asks the owner to quit after this many beats. Zero means never.
	MaxBeats int
}

// DefaultConfig returns a 250ms heartbeat that never quits on its own.
func DefaultConfig() Config {
	return Config{Interval: 250 * time.Millisecond}
}

func init() {
	_ = app.Register(ID, "schedule a beat on the loop thread at a fixed interval", NewCreator(DefaultConfig()))
}

// NewCreator returns a creator for heartbeat applications using cfg.
func NewCreator(cfg Config) app.Creator {
	return func(ctx app.Context) app.Application {
		return New(ctx, cfg)
	}
}

// App is the heartbeat application.
type App struct {
	ctx    app.Context
	cfg    Config
	logger *logging.Logger

	beats   atomic.Int64
	stopped atomic.Bool
	started bool
	quit    bool // loop thread only

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New returns an uninitialized heartbeat bound to ctx.
func New(ctx app.Context, cfg Config) *App {
	return &App{
		ctx:    ctx,
		cfg:    cfg,
		logger: ctx.Logger().WithApp(ID),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// OnInitialize starts the ticker goroutine.
func (a *App) OnInitialize() bool {
	if a.cfg.Interval <= 0 {
		a.logger.Error("invalid heartbeat interval", "interval", a.cfg.Interval)
		return false
	}
	a.started = true
	go a.tick()
	a.logger.Info("heartbeat started", "interval", a.cfg.Interval, "max_beats", a.cfg.MaxBeats)
	return true
}

// InvokeOnDestroy stops the ticker and waits for it to exit. Beats already
// queued on the loop thread become no-ops.
func (a *App) InvokeOnDestroy() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.stop) })
	if a.started {
		<-a.done
	}
	a.logger.Info("heartbeat stopped", "beats", a.beats.Load())
}

// Beats returns the number of beats that ran on the loop thread.
func (a *App) Beats() int64 {
	return a.beats.Load()
}

func (a *App) tick() {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if !a.ctx.CallInLoopThreadDeferred(a.beat) {
				a.logger.Debug("bridge no longer accepts work, stopping ticker")
				return
			}
		}
	}
}

func (a *App) beat() {
	if a.stopped.Load() {
		return
	}
	n := a.beats.Add(1)
	a.logger.Debug("beat", "n", n)

	if a.cfg.MaxBeats > 0 && n >= int64(a.cfg.MaxBeats) && !a.quit {
		a.quit = true
		a.logger.Info("beat limit reached", "beats", n)
		a.ctx.QuitFromLoopThread()
	}
}
