// Package watch provides an application that watches a directory and reports
// batches of matching file changes on the loop thread.
//
// Filesystem events arrive on a watcher goroutine. They are filtered by base
// name against glob patterns, debounced, and handed to the loop thread as one
// batch per quiet period. Creating or writing the configured quit file asks
// the owner to shut the application down.
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

// ID is the registry identifier.
const ID = "watch"

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// Config controls what is watched.
type Config struct {
	Dir string
	// Patterns are matched against base names. Empty matches everything.
	Patterns []string
	Debounce time.Duration
	// QuitFile is a base name; creating or writing it requests a quit.
	QuitFile string
}

// DefaultConfig watches the working directory.
func DefaultConfig() Config {
	return Config{Dir: ".", Debounce: DefaultDebounce}
}

func init() {
	_ = app.Register(ID, "report debounced file changes in a directory on the loop thread", NewCreator(DefaultConfig()))
}

// NewCreator returns a creator for watch applications using cfg.
func NewCreator(cfg Config) app.Creator {
	return func(ctx app.Context) app.Application {
		return New(ctx, cfg)
	}
}

// Change is a single debounced file event.
type Change struct {
	Path string
	Op   fsnotify.Op
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s", c.Op, c.Path)
}

// App is the watch application.
type App struct {
	ctx    app.Context
	cfg    Config
	logger *logging.Logger

	matchers []glob.Glob
	watcher  *fsnotify.Watcher

	stopped atomic.Bool
	batches atomic.Int64
	changes atomic.Int64
	quit    bool                // loop thread only
	seen    map[string]struct{} // loop thread only

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New returns an uninitialized watcher bound to ctx.
func New(ctx app.Context, cfg Config) *App {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &App{
		ctx:    ctx,
		cfg:    cfg,
		logger: ctx.Logger().WithApp(ID),
		seen:   make(map[string]struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// OnInitialize compiles the patterns and starts watching. Any failure leaves
// nothing running.
func (a *App) OnInitialize() bool {
	for _, p := range a.cfg.Patterns {
		g, err := glob.Compile(p)
		if err != nil {
			a.logger.Error("invalid pattern", "pattern", p, "error", err)
			return false
		}
		a.matchers = append(a.matchers, g)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		a.logger.Error("failed to create watcher", "error", err)
		return false
	}
	if err := watcher.Add(a.cfg.Dir); err != nil {
		_ = watcher.Close()
		a.logger.Error("failed to watch directory", "dir", a.cfg.Dir, "error", err)
		return false
	}
	a.watcher = watcher

	go a.watchLoop()
	a.logger.Info("watching directory", "dir", a.cfg.Dir, "patterns", a.cfg.Patterns)
	return true
}

// InvokeOnDestroy stops the watcher and waits for its goroutine.
func (a *App) InvokeOnDestroy() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.stop) })
	if a.watcher == nil {
		return
	}
	_ = a.watcher.Close()
	<-a.done
	a.logger.Info("watch stopped", "batches", a.batches.Load(), "changes", a.changes.Load())
}

// Batches returns the number of batches delivered on the loop thread.
func (a *App) Batches() int64 { return a.batches.Load() }

// Changes returns the number of changes delivered on the loop thread.
func (a *App) Changes() int64 { return a.changes.Load() }

// Seen reports whether path has been delivered. Call it on the loop thread.
func (a *App) Seen(path string) bool {
	_, ok := a.seen[path]
	return ok
}

// Matches reports whether a base name passes the pattern filter.
func (a *App) Matches(name string) bool {
	if len(a.matchers) == 0 {
		return true
	}
	for _, g := range a.matchers {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (a *App) isQuitFile(path string) bool {
	return a.cfg.QuitFile != "" && filepath.Base(path) == a.cfg.QuitFile
}

func (a *App) watchLoop() {
	defer close(a.done)

	// Editors commonly emit several events per save.
	debounce := time.NewTimer(0)
	<-debounce.C

	pending := make(map[string]fsnotify.Event)

	for {
		select {
		case <-a.stop:
			debounce.Stop()
			return

		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if !a.isQuitFile(ev.Name) && !a.Matches(filepath.Base(ev.Name)) {
				continue
			}
			if prev, ok := pending[ev.Name]; ok {
				ev.Op |= prev.Op
			}
			pending[ev.Name] = ev
			debounce.Reset(a.cfg.Debounce)

		case <-debounce.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]Change, 0, len(pending))
			for _, ev := range pending {
				batch = append(batch, Change{Path: ev.Name, Op: ev.Op})
			}
			pending = make(map[string]fsnotify.Event)
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

			if !a.ctx.CallInLoopThreadDeferred(func() { a.deliver(batch) }) {
				a.logger.Debug("bridge no longer accepts work, dropping batch", "changes", len(batch))
			}

		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("watcher error", "error", err)
		}
	}
}

// deliver runs on the loop thread.
func (a *App) deliver(batch []Change) {
	if a.stopped.Load() {
		return
	}
	a.batches.Add(1)
	a.changes.Add(int64(len(batch)))

	quit := false
	for _, c := range batch {
		a.seen[c.Path] = struct{}{}
		a.logger.Info("file changed", "path", c.Path, "op", c.Op.String())
		if a.isQuitFile(c.Path) && c.Op&(fsnotify.Create|fsnotify.Write) != 0 {
			quit = true
		}
	}
	if quit && !a.quit {
		a.quit = true
		a.logger.Info("quit file seen", "file", a.cfg.QuitFile)
		a.ctx.QuitFromLoopThread()
	}
}
