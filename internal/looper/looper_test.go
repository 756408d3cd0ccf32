//go:build linux

package looper_test

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/loopbridge/internal/errors"
	"github.com/Iron-Ham/loopbridge/internal/looper"
	"github.com/Iron-Ham/loopbridge/internal/testutil"
)

// onThread runs fn on a fresh goroutine that owns a prepared Looper and
// unprepares it afterwards.
func onThread(t *testing.T, fn func(l *looper.Looper)) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		l, err := looper.Prepare()
		if err != nil {
			t.Errorf("Prepare() = %v", err)
			return
		}
		defer func() {
			if err := l.Unprepare(); err != nil {
				t.Errorf("Unprepare() = %v", err)
			}
		}()
		fn(l)
	}()
	select {
	case <-done:
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("loop thread did not finish")
	}
}

func pipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestPrepare_ReturnsSameLooperPerThread(t *testing.T) {
	onThread(t, func(l *looper.Looper) {
		again, err := looper.Prepare()
		if err != nil {
			t.Fatalf("second Prepare() = %v", err)
		}
		if again != l {
			t.Error("Prepare() on the same thread returned a different Looper")
		}
		if looper.ForThread() != l {
			t.Error("ForThread() did not return the prepared Looper")
		}
		if !l.IsOwnerThread() {
			t.Error("IsOwnerThread() = false on the owner thread")
		}
		if l.Refs() != 1 {
			t.Errorf("Refs() = %d, want 1", l.Refs())
		}
	})
}

func TestForThread_UnpreparedThread(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if l := looper.ForThread(); l != nil {
			t.Errorf("ForThread() = %p on a thread that was never prepared", l)
		}
	}()
	<-done
}

func TestPollOnce_NotOwner(t *testing.T) {
	lt := testutil.StartLoopThread(t)
	if _, err := lt.Looper.PollOnce(0); !errors.Is(err, errors.ErrNotOwnerThread) {
		t.Errorf("PollOnce() from another goroutine = %v, want ErrNotOwnerThread", err)
	}
	if err := lt.Looper.Loop(context.Background()); !errors.Is(err, errors.ErrNotOwnerThread) {
		t.Errorf("Loop() from another goroutine = %v, want ErrNotOwnerThread", err)
	}
	if err := lt.Looper.Unprepare(); !errors.Is(err, errors.ErrNotOwnerThread) {
		t.Errorf("Unprepare() from another goroutine = %v, want ErrNotOwnerThread", err)
	}
}

func TestPollOnce_Results(t *testing.T) {
	onThread(t, func(l *looper.Looper) {
		res, err := l.PollOnce(0)
		if err != nil || res != looper.PollTimeout {
			t.Errorf("idle PollOnce = (%v, %v), want timeout", res, err)
		}

		l.Wake()
		l.Wake()
		res, err = l.PollOnce(time.Second)
		if err != nil || res != looper.PollWake {
			t.Errorf("woken PollOnce = (%v, %v), want wake", res, err)
		}
		// Coalesced wakes are fully drained.
		if res, _ = l.PollOnce(0); res != looper.PollTimeout {
			t.Errorf("PollOnce after drain = %v, want timeout", res)
		}

		ran := false
		if err := l.Post(func() { ran = true }); err != nil {
			t.Fatalf("Post() = %v", err)
		}
		res, err = l.PollOnce(time.Second)
		if err != nil || res != looper.PollCallback || !ran {
			t.Errorf("posted PollOnce = (%v, %v), ran=%v", res, err, ran)
		}
	})
}

func TestAddFd_CallbackKeepAndDrop(t *testing.T) {
	onThread(t, func(l *looper.Looper) {
		r, w := pipe(t)

		calls := 0
		keep := true
		err := l.AddFd(r, looper.EventInput, func(fd int, ev looper.Events) bool {
			calls++
			if fd != r || !ev.Has(looper.EventInput) {
				t.Errorf("callback(fd=%d, events=%v)", fd, ev)
			}
			var buf [1]byte
			_, _ = unix.Read(fd, buf[:])
			return keep
		})
		if err != nil {
			t.Fatalf("AddFd() = %v", err)
		}

		_, _ = unix.Write(w, []byte{1})
		if res, _ := l.PollOnce(time.Second); res != looper.PollCallback {
			t.Fatalf("PollOnce = %v, want callback", res)
		}
		if !l.Registered(r) {
			t.Error("registration dropped although callback returned true")
		}

		keep = false
		_, _ = unix.Write(w, []byte{2})
		_, _ = l.PollOnce(time.Second)
		if l.Registered(r) {
			t.Error("registration kept although callback returned false")
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})
}

func TestCallback_ReAddSurvivesDrop(t *testing.T) {
	onThread(t, func(l *looper.Looper) {
		r, w := pipe(t)

		second := 0
		var first looper.Callback
		first = func(fd int, _ looper.Events) bool {
			var buf [1]byte
			_, _ = unix.Read(fd, buf[:])
			_ = l.AddFd(fd, looper.EventInput, func(int, looper.Events) bool {
				second++
				_, _ = unix.Read(fd, buf[:])
				return true
			})
			return false
		}
		if err := l.AddFd(r, looper.EventInput, first); err != nil {
			t.Fatal(err)
		}

		_, _ = unix.Write(w, []byte{1})
		_, _ = l.PollOnce(time.Second)
		if !l.Registered(r) {
			t.Fatal("re-added registration was dropped")
		}

		_, _ = unix.Write(w, []byte{1})
		_, _ = l.PollOnce(time.Second)
		if second != 1 {
			t.Errorf("second callback ran %d times, want 1", second)
		}
	})
}

func TestRemoveFd_CollectedCallbackStillRuns(t *testing.T) {
	onThread(t, func(l *looper.Looper) {
		r1, w1 := pipe(t)
		r2, w2 := pipe(t)

		var ran []int
		cb := func(fd int, _ looper.Events) bool {
			ran = append(ran, fd)
			var buf [1]byte
			_, _ = unix.Read(fd, buf[:])
			// Whichever runs first removes the other.
			other := r1
			if fd == r1 {
				other = r2
			}
			l.RemoveFd(other)
			return true
		}
		_ = l.AddFd(r1, looper.EventInput, cb)
		_ = l.AddFd(r2, looper.EventInput, cb)
		_, _ = unix.Write(w1, []byte{1})
		_, _ = unix.Write(w2, []byte{1})

		_, _ = l.PollOnce(time.Second)
		if len(ran) != 2 {
			t.Errorf("callbacks ran for %v, want both descriptors", ran)
		}
	})
}

func TestCallback_Hangup(t *testing.T) {
	onThread(t, func(l *looper.Looper) {
		var p [2]int
		if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
			t.Fatal(err)
		}
		defer unix.Close(p[0])

		var got looper.Events
		_ = l.AddFd(p[0], looper.EventInput, func(_ int, ev looper.Events) bool {
			got = ev
			return false
		})
		_ = unix.Close(p[1])

		_, _ = l.PollOnce(time.Second)
		if !got.Has(looper.EventHangup) || !got.Fatal() {
			t.Errorf("events = %v, want hangup", got)
		}
	})
}

func TestAddFd_Invalid(t *testing.T) {
	lt := testutil.StartLoopThread(t)
	if err := lt.Looper.AddFd(-1, looper.EventInput, func(int, looper.Events) bool { return true }); !errors.Is(err, errors.ErrInvalidFd) {
		t.Errorf("AddFd(-1) = %v, want ErrInvalidFd", err)
	}
	if err := lt.Looper.AddFd(0, looper.EventInput, nil); err == nil {
		t.Error("AddFd with nil callback should fail")
	}
	if lt.Looper.RemoveFd(12345) {
		t.Error("RemoveFd on unknown fd reported true")
	}
}

func TestRelease_ClosesAfterLastReference(t *testing.T) {
	var l *looper.Looper
	onThread(t, func(prepared *looper.Looper) {
		l = prepared
		l.Acquire()
	})
	// The thread reference is gone; ours keeps it open.
	if l.Closed() {
		t.Fatal("looper closed while a reference is held")
	}
	l.Release()
	if !l.Closed() {
		t.Fatal("looper still open after final Release")
	}
	if err := l.Post(func() {}); !errors.Is(err, errors.ErrLoopClosed) {
		t.Errorf("Post() after close = %v, want ErrLoopClosed", err)
	}
	if err := l.AddFd(0, looper.EventInput, func(int, looper.Events) bool { return true }); !errors.Is(err, errors.ErrLoopClosed) {
		t.Errorf("AddFd() after close = %v, want ErrLoopClosed", err)
	}
	l.Wake() // no-op
}

func TestRelease_DuringPollDefersClose(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l, err := looper.Prepare()
		if err != nil {
			t.Errorf("Prepare() = %v", err)
			return
		}
		r, w := pipe(t)
		_, _ = unix.Write(w, []byte{1})

		ranAfterClose := false
		_ = l.Post(func() {
			if err := l.Unprepare(); err != nil {
				t.Errorf("Unprepare() = %v", err)
			}
			if !l.Closed() {
				t.Error("final Release did not mark the looper closed")
			}
		})
		// Registered after the post so it is polled in the same step.
		_ = l.AddFd(r, looper.EventInput, func(int, looper.Events) bool {
			ranAfterClose = true
			return true
		})

		if _, err := l.PollOnce(0); err != nil {
			t.Errorf("PollOnce() = %v", err)
		}
		if !ranAfterClose {
			t.Error("ready callback did not run in the step that closed the looper")
		}
	}()
	<-done
}

func TestLoop_WakeFromOtherGoroutines(t *testing.T) {
	lt := testutil.StartLoopThread(t)

	var count atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if err := lt.Looper.Post(func() { count.Add(1) }); err != nil {
					t.Errorf("Post() = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	testutil.WaitFor(t, "posted functions", func() bool { return count.Load() == 400 })
}

func TestEvents_String(t *testing.T) {
	tests := []struct {
		ev   looper.Events
		want string
	}{
		{0, "none"},
		{looper.EventInput, "input"},
		{looper.EventInput | looper.EventHangup, "input|hangup"},
		{looper.EventError | looper.EventInvalid, "error|invalid"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("Events(%d).String() = %q, want %q", tt.ev, got, tt.want)
		}
	}
	if looper.EventInput.Fatal() || looper.EventOutput.Fatal() {
		t.Error("input/output should not be fatal")
	}
	if looper.PollCallback.String() != "callback" {
		t.Errorf("PollCallback.String() = %q", looper.PollCallback.String())
	}
}
