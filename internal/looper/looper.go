//go:build linux

package looper

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/loopbridge/internal/errors"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

var wakeByte = []byte{'w'}

// threads maps OS thread ids to their prepared Looper.
var (
	threadsMu sync.Mutex
	threads   = make(map[int]*Looper)
)

type registration struct {
	events Events
	cb     Callback
	seq    uint64
}

type response struct {
	fd     int
	events Events
	reg    registration
}

// Looper is a per-thread poll loop. Descriptor registration, Wake and Post
// are safe from any goroutine; PollOnce and Loop run only on the owning
// thread.
type Looper struct {
	tid    int
	logger atomic.Pointer[logging.Logger]
	refs   atomic.Int32

	// life guards the wake pipe against the final Release.
	life    sync.Mutex
	closed  bool
	polling bool
	wakeR   int
	wakeW   int

	wakePending atomic.Bool

	mu     sync.Mutex
	regs   map[int]registration
	seq    uint64
	posted []func()
}

// Prepare locks the calling goroutine to its OS thread and returns that
// thread's Looper, creating it on first use. The thread association holds
// one reference until Unprepare.
func Prepare() (*Looper, error) {
	runtime.LockOSThread()
	tid := unix.Gettid()

	threadsMu.Lock()
	defer threadsMu.Unlock()

	if l, ok := threads[tid]; ok {
		// Already locked by the Prepare that created l.
		runtime.UnlockOSThread()
		return l, nil
	}

	l, err := newLooper(tid)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	threads[tid] = l
	return l, nil
}

// ForThread returns the Looper prepared on the calling thread, or nil.
func ForThread() *Looper {
	tid := unix.Gettid()
	threadsMu.Lock()
	defer threadsMu.Unlock()
	return threads[tid]
}

func newLooper(tid int) (*Looper, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, errors.Wrap(err, "create wake pipe")
	}
	l := &Looper{
		tid:   tid,
		wakeR: p[0],
		wakeW: p[1],
		regs:  make(map[int]registration),
	}
	l.refs.Store(1)
	return l, nil
}

// Unprepare detaches the Looper from its thread, drops the thread's
// reference and unlocks the OS thread. It must be called on the owner thread.
func (l *Looper) Unprepare() error {
	if !l.IsOwnerThread() {
		return errors.ErrNotOwnerThread
	}
	threadsMu.Lock()
	if threads[l.tid] == l {
		delete(threads, l.tid)
	}
	threadsMu.Unlock()

	l.Release()
	runtime.UnlockOSThread()
	return nil
}

// SetLogger attaches a logger; nil restores the silent default.
func (l *Looper) SetLogger(logger *logging.Logger) {
	if logger != nil {
		logger = logger.WithComponent("looper")
	}
	l.logger.Store(logger)
}

func (l *Looper) log() *logging.Logger {
	if lg := l.logger.Load(); lg != nil {
		return lg
	}
	return nopLogger
}

var nopLogger = logging.NopLogger()

// IsOwnerThread reports whether the caller runs on the Looper's thread.
func (l *Looper) IsOwnerThread() bool {
	return unix.Gettid() == l.tid
}

// Acquire adds a reference.
func (l *Looper) Acquire() {
	l.refs.Add(1)
}

// Release drops a reference. The last reference closes the wake pipe; if the
// owner is inside PollOnce the pipe is closed when that call returns.
func (l *Looper) Release() {
	n := l.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		l.log().Error("looper released more times than acquired", "refs", n)
		return
	}

	l.life.Lock()
	defer l.life.Unlock()
	l.closed = true
	if l.polling {
		_, _ = unix.Write(l.wakeW, wakeByte)
		return
	}
	l.closeFds()
}

// Refs returns the current reference count.
func (l *Looper) Refs() int {
	return int(l.refs.Load())
}

// closeFds must be called with life held.
func (l *Looper) closeFds() {
	if l.wakeR >= 0 {
		_ = unix.Close(l.wakeR)
		_ = unix.Close(l.wakeW)
		l.wakeR, l.wakeW = -1, -1
	}
}

// Closed reports whether the last reference has been released.
func (l *Looper) Closed() bool {
	l.life.Lock()
	defer l.life.Unlock()
	return l.closed
}

// AddFd registers cb for fd, replacing any existing registration.
func (l *Looper) AddFd(fd int, events Events, cb Callback) error {
	if fd < 0 {
		return errors.ErrInvalidFd
	}
	if cb == nil {
		return errors.New("looper: nil callback")
	}
	if l.Closed() {
		return errors.ErrLoopClosed
	}

	l.mu.Lock()
	l.seq++
	l.regs[fd] = registration{events: events, cb: cb, seq: l.seq}
	l.mu.Unlock()

	l.Wake()
	return nil
}

// RemoveFd unregisters fd and reports whether it was registered. A callback
// for fd already collected by an in-progress PollOnce still runs.
func (l *Looper) RemoveFd(fd int) bool {
	l.mu.Lock()
	_, ok := l.regs[fd]
	delete(l.regs, fd)
	l.mu.Unlock()

	if ok {
		l.Wake()
	}
	return ok
}

// Registered reports whether fd currently has a registration.
func (l *Looper) Registered(fd int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.regs[fd]
	return ok
}

// Wake interrupts a blocked PollOnce. Wakes coalesce until the loop drains
// the wake pipe.
func (l *Looper) Wake() {
	if !l.wakePending.CompareAndSwap(false, true) {
		return
	}

	l.life.Lock()
	defer l.life.Unlock()
	if l.closed {
		return
	}
	if _, err := unix.Write(l.wakeW, wakeByte); err != nil && err != unix.EAGAIN {
		l.wakePending.Store(false)
		l.log().Warn("wake failed", "error", err)
	}
}

// Post queues fn to run on the loop thread during the next poll step.
func (l *Looper) Post(fn func()) error {
	if l.Closed() {
		return errors.ErrLoopClosed
	}
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	l.Wake()
	return nil
}

// PollOnce runs posted functions, waits up to timeout (negative waits
// forever) for registered descriptors, and runs their callbacks. Callbacks
// run without internal locks held and may call any Looper method.
func (l *Looper) PollOnce(timeout time.Duration) (PollResult, error) {
	if !l.IsOwnerThread() {
		return PollTimeout, errors.ErrNotOwnerThread
	}
	wakeR, err := l.beginPoll()
	if err != nil {
		return PollTimeout, err
	}
	defer l.endPoll()

	result := PollTimeout
	if l.runPosted() {
		result = PollCallback
		timeout = 0
	}

	fds, seqs := l.snapshot(wakeR)
	n, err := unix.Poll(fds, pollMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return max(result, PollWake), nil
		}
		return result, errors.Wrap(err, "poll")
	}
	if n == 0 {
		return result, nil
	}

	if fds[0].Revents != 0 {
		l.drainWake(wakeR)
		result = max(result, PollWake)
	}

	responses := l.collect(fds[1:], seqs)
	for _, r := range responses {
		if keep := r.reg.cb(r.fd, r.events); !keep {
			l.drop(r.fd, r.reg.seq)
		}
	}
	if len(responses) > 0 {
		result = PollCallback
	}
	return result, nil
}

// Loop polls until ctx is done. It returns nil on cancellation.
func (l *Looper) Loop(ctx context.Context) error {
	if !l.IsOwnerThread() {
		return errors.ErrNotOwnerThread
	}
	stop := context.AfterFunc(ctx, l.Wake)
	defer stop()

	for ctx.Err() == nil {
		if _, err := l.PollOnce(-1); err != nil {
			return err
		}
	}
	return nil
}

func (l *Looper) beginPoll() (int, error) {
	l.life.Lock()
	defer l.life.Unlock()
	if l.closed {
		return -1, errors.ErrLoopClosed
	}
	l.polling = true
	return l.wakeR, nil
}

func (l *Looper) endPoll() {
	l.life.Lock()
	defer l.life.Unlock()
	l.polling = false
	if l.closed {
		l.closeFds()
	}
}

func (l *Looper) runPosted() bool {
	l.mu.Lock()
	fns := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

// snapshot builds the poll set; index 0 is the wake pipe.
func (l *Looper) snapshot(wakeR int) ([]unix.PollFd, []uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fds := make([]unix.PollFd, 1, len(l.regs)+1)
	seqs := make([]uint64, 0, len(l.regs))
	fds[0] = unix.PollFd{Fd: int32(wakeR), Events: unix.POLLIN}
	for fd, reg := range l.regs {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPoll(reg.events)})
		seqs = append(seqs, reg.seq)
	}
	return fds, seqs
}

// collect matches ready descriptors against registrations that are still
// the ones that were polled.
func (l *Looper) collect(fds []unix.PollFd, seqs []uint64) []response {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []response
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		reg, ok := l.regs[int(pfd.Fd)]
		if !ok || reg.seq != seqs[i] {
			continue
		}
		out = append(out, response{fd: int(pfd.Fd), events: fromPoll(pfd.Revents), reg: reg})
	}
	return out
}

// drop removes fd only if it still holds the registration that asked to be
// dropped, so a callback that re-added fd keeps the new registration.
func (l *Looper) drop(fd int, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reg, ok := l.regs[fd]; ok && reg.seq == seq {
		delete(l.regs, fd)
		l.log().Debug("callback dropped registration", "fd", fd)
	}
}

func (l *Looper) drainWake(fd int) {
	l.wakePending.Store(false)
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err != nil || n < len(buf) {
			return
		}
	}
}

func pollMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

func toPoll(e Events) int16 {
	var p int16
	if e&EventInput != 0 {
		p |= unix.POLLIN
	}
	if e&EventOutput != 0 {
		p |= unix.POLLOUT
	}
	return p
}

func fromPoll(p int16) Events {
	var e Events
	if p&unix.POLLIN != 0 {
		e |= EventInput
	}
	if p&unix.POLLOUT != 0 {
		e |= EventOutput
	}
	if p&unix.POLLERR != 0 {
		e |= EventError
	}
	if p&unix.POLLHUP != 0 {
		e |= EventHangup
	}
	if p&unix.POLLNVAL != 0 {
		e |= EventInvalid
	}
	return e
}
