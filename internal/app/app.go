// Package app defines the application hosted by a bridge and the registry
// that maps application identifiers to their creators.
//
// A bridge owns exactly one Application while it is active. OnInitialize runs
// once on the loop thread after the bridge's channel and registration exist;
// returning false aborts construction. InvokeOnDestroy runs exactly once, on
// the loop thread, when the application is torn down for any reason.
package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Iron-Ham/loopbridge/internal/errors"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

// Application is the capability surface a bridge drives.
type Application interface {
	// OnInitialize performs setup and reports whether the application can run.
	OnInitialize() bool
	// InvokeOnDestroy releases the application's resources.
	InvokeOnDestroy()
}

// Context is what a hosting bridge offers to its application.
type Context interface {
	// CallInLoopThreadDeferred schedules fn on the loop thread. It is safe from
	// any goroutine and reports false once the bridge no longer accepts work.
	CallInLoopThreadDeferred(fn func()) bool
	// QuitFromLoopThread asks the owner to shut the application down. Call it
	// only on the loop thread.
	QuitFromLoopThread()
	// IsInLoopThread reports whether the caller runs on the loop thread.
	IsInLoopThread() bool
	// Logger returns a logger tagged with the bridge and application.
	Logger() *logging.Logger
}

// Creator constructs an Application bound to ctx. It must not block.
type Creator func(ctx Context) Application

type entry struct {
	description string
	creator     Creator
}

// Registry maps application identifiers to creators. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a creator under id. Registering the same id twice or a nil
// creator is an error.
func (r *Registry) Register(id, description string, creator Creator) error {
	if creator == nil {
		return fmt.Errorf("register %q: nil creator", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[id]; dup {
		return fmt.Errorf("register %q: already registered", id)
	}
	r.entries[id] = entry{description: description, creator: creator}
	return nil
}

// Creator returns the creator registered under id.
func (r *Registry) Creator(id string) (Creator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrAppNotFound, "application %q", id)
	}
	return e.creator, nil
}

// Describe returns the description registered with id.
func (r *Registry) Describe(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id].description
}

// Identifiers returns every registered id in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// defaultRegistry backs the package-level helpers.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds a creator to the process-wide registry.
func Register(id, description string, creator Creator) error {
	return defaultRegistry.Register(id, description, creator)
}

// GetCreator looks up id in the process-wide registry.
func GetCreator(id string) (Creator, error) {
	return defaultRegistry.Creator(id)
}

// Identifiers lists the process-wide registry.
func Identifiers() []string {
	return defaultRegistry.Identifiers()
}
