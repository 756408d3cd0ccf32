//go:build linux

// Package testutil provides testing utilities for loopbridge tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/loopbridge/internal/looper"
)

// DefaultTimeout bounds every wait in this package.
const DefaultTimeout = 5 * time.Second

// LoopThread runs a real Looper on a dedicated, locked OS thread.
type LoopThread struct {
	Looper *looper.Looper

	t      testing.TB
	cancel context.CancelFunc
	done   chan error
	stop   sync.Once
}

// StartLoopThread prepares a Looper on a new goroutine and runs its loop
// until the test ends or Stop is called.
func StartLoopThread(t testing.TB) *LoopThread {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	lt := &LoopThread{t: t, cancel: cancel, done: make(chan error, 1)}
	ready := make(chan error, 1)

	go func() {
		l, err := looper.Prepare()
		if err != nil {
			ready <- err
			return
		}
		lt.Looper = l
		ready <- nil

		loopErr := l.Loop(ctx)
		if err := l.Unprepare(); err != nil && loopErr == nil {
			loopErr = err
		}
		lt.done <- loopErr
	}()

	if err := <-ready; err != nil {
		cancel()
		t.Fatalf("failed to prepare looper: %v", err)
	}
	t.Cleanup(lt.Stop)
	return lt
}

// Do runs fn on the loop thread and waits for it to return.
func (lt *LoopThread) Do(fn func()) {
	lt.t.Helper()

	finished := make(chan struct{})
	if err := lt.Looper.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		lt.t.Fatalf("failed to post to loop thread: %v", err)
	}
	select {
	case <-finished:
	case <-time.After(DefaultTimeout):
		lt.t.Fatal("timed out waiting for loop thread")
	}
}

// Stop ends the loop and waits for the thread to unprepare. It is safe to
// call more than once.
func (lt *LoopThread) Stop() {
	lt.stop.Do(func() {
		lt.cancel()
		select {
		case err := <-lt.done:
			if err != nil {
				lt.t.Errorf("loop exited with error: %v", err)
			}
		case <-time.After(DefaultTimeout):
			lt.t.Error("timed out stopping loop thread")
		}
	})
}

// WaitFor polls cond until it returns true or DefaultTimeout elapses.
func WaitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// OpenFds returns the number of descriptors open in this process.
func OpenFds(t testing.TB) int {
	t.Helper()

	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatalf("failed to list open descriptors: %v", err)
	}
	return len(entries)
}

// WriteFile creates or replaces dir/name with content.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return path
}
