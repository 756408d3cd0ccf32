//go:build linux

package bridge

import (
	"fmt"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/errors"
	"github.com/Iron-Ham/loopbridge/internal/looper"
)

// State is a Bridge lifecycle state.
type State int32

// Lifecycle states, in order.
const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateShuttingDown
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loop is the event loop a Bridge registers with. *looper.Looper satisfies it.
type Loop interface {
	// Acquire and Release manage a reference on the loop.
	Acquire()
	Release()

	// AddFd registers cb for fd; RemoveFd may allow one more in-flight
	// callback after it returns.
	AddFd(fd int, events looper.Events, cb looper.Callback) error
	RemoveFd(fd int) bool

	// Wake interrupts a blocked poll. Safe from any goroutine.
	Wake()

	// IsOwnerThread reports whether the caller runs on the loop thread.
	IsOwnerThread() bool
}

// ContextProvider supplies what Create needs from its environment.
type ContextProvider interface {
	// Loop returns the calling thread's loop.
	Loop() (Loop, error)
	// AppCreator returns the creator of the hosted application.
	AppCreator() (app.Creator, error)
}

// ThreadProvider resolves the loop prepared on the calling thread and looks
// AppID up in Registry, or in the process-wide registry when Registry is nil.
type ThreadProvider struct {
	AppID    string
	Registry *app.Registry
}

// Loop returns looper.ForThread, or ErrNoLoop if none is prepared.
func (p ThreadProvider) Loop() (Loop, error) {
	l := looper.ForThread()
	if l == nil {
		return nil, errors.ErrNoLoop
	}
	return l, nil
}

// AppName returns AppID. Create uses it to tag logs and events.
func (p ThreadProvider) AppName() string { return p.AppID }

// AppCreator looks up AppID.
func (p ThreadProvider) AppCreator() (app.Creator, error) {
	reg := p.Registry
	if reg == nil {
		reg = app.Default()
	}
	return reg.Creator(p.AppID)
}

// Stats are lifetime counters for a Bridge.
type Stats struct {
	// Requests counts RequestFunctionExecution calls.
	Requests int64
	// Coalesced counts requests that found the pipe full of earlier requests.
	Coalesced int64
	// SendFailures counts commands that could not be written.
	SendFailures int64
	// RunnerInvocations counts pending-work runner executions.
	RunnerInvocations int64
	// Executed counts deferred functions run on the loop thread.
	Executed int64
}
