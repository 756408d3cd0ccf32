//go:build linux

// Package channel implements the command channel: a pipe carrying fixed-size
// command records from any goroutine to the loop thread.
//
// Records are 4-byte, native-endian Command values with no framing. A
// record is smaller than PIPE_BUF, so concurrent writers never interleave.
// Both ends are non-blocking. Send fails on a full pipe; SendWait waits a
// bounded time for room, so a caller can block without ever stalling the
// loop thread. The read side is only consulted after the loop reports the
// descriptor readable.
package channel

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/loopbridge/internal/errors"
)

// Command is a record sent over the channel.
type Command uint32

const (
	// ExecutePendingFunctions asks the loop thread to run pending deferred work.
	ExecutePendingFunctions Command = iota
	// Destroy asks the loop thread to delete the bridge.
	Destroy
)

// RecordSize is the encoded size of one Command.
const RecordSize = 4

func (c Command) String() string {
	switch c {
	case ExecutePendingFunctions:
		return "execute_pending_functions"
	case Destroy:
		return "destroy"
	default:
		return fmt.Sprintf("command(%d)", uint32(c))
	}
}

// Valid reports whether c is part of the protocol.
func (c Command) Valid() bool {
	return c == ExecutePendingFunctions || c == Destroy
}

// Channel is a one-way command pipe. Send and Close are safe for concurrent
// use; Receive is meant for the single loop-thread reader.
type Channel struct {
	// mu is held shared by transfers and exclusively by Close, so a transfer
	// never touches a descriptor number that Close has released.
	mu     sync.RWMutex
	readFd int
	wrFd   int
	closed bool
}

// Opener creates a Channel. It exists so tests and alternative transports
// can substitute Open.
type Opener func() (*Channel, error)

// Open creates the pipe with close-on-exec set on both ends.
func Open() (*Channel, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, errors.NewChannelIOError(errors.OpOpen, err)
	}
	return &Channel{readFd: p[0], wrFd: p[1]}, nil
}

// ReadFd returns the descriptor the loop should watch, or -1 once closed.
func (c *Channel) ReadFd() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return -1
	}
	return c.readFd
}

// Send writes exactly one record.
func (c *Channel) Send(cmd Command) error {
	var buf [RecordSize]byte
	binary.NativeEndian.PutUint32(buf[:], uint32(cmd))

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.NewChannelIOError(errors.OpSend, errors.ErrChannelClosed)
	}
	n, err := unix.Write(c.wrFd, buf[:])
	switch {
	case err == unix.EAGAIN:
		return errors.NewChannelIOError(errors.OpSend, errors.ErrWouldBlock)
	case err != nil:
		return errors.NewChannelIOError(errors.OpSend, err)
	case n != RecordSize:
		return errors.NewChannelIOError(errors.OpSend, errors.ErrShortTransfer).WithBytes(n)
	}
	return nil
}

// waitSlice bounds each poll in SendWait so Close is never held up for long.
const waitSlice = 20 * time.Millisecond

// SendWait is Send that waits up to timeout for room in a full pipe. It
// returns ErrWouldBlock if the pipe is still full when timeout elapses, and
// ErrChannelClosed if the channel is closed while waiting. Only the loop
// thread empties the pipe, so it must not call SendWait.
func (c *Channel) SendWait(cmd Command, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := c.Send(cmd)
		if !errors.IsRetryable(err) {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return err
		}
		if err := c.waitWritable(min(remaining, waitSlice)); err != nil {
			return err
		}
	}
}

// waitWritable polls the write end for room. The shared lock keeps the
// descriptor from being released while it is polled.
func (c *Channel) waitWritable(d time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.NewChannelIOError(errors.OpSend, errors.ErrChannelClosed)
	}
	fds := []unix.PollFd{{Fd: int32(c.wrFd), Events: unix.POLLOUT}}
	ms := max(int(d/time.Millisecond), 1)
	if _, err := unix.Poll(fds, ms); err != nil && err != unix.EINTR {
		return errors.NewChannelIOError(errors.OpSend, err)
	}
	return nil
}

// Receive reads exactly one record. It never blocks: an empty pipe yields
// ErrWouldBlock.
func (c *Channel) Receive() (Command, error) {
	var buf [RecordSize]byte

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, errors.NewChannelIOError(errors.OpReceive, errors.ErrChannelClosed)
	}
	n, err := unix.Read(c.readFd, buf[:])
	switch {
	case err == unix.EAGAIN:
		return 0, errors.NewChannelIOError(errors.OpReceive, errors.ErrWouldBlock)
	case err != nil:
		return 0, errors.NewChannelIOError(errors.OpReceive, err)
	case n == 0:
		// Every writer is gone.
		return 0, errors.NewChannelIOError(errors.OpReceive, errors.ErrChannelClosed).WithBytes(0)
	case n != RecordSize:
		return 0, errors.NewChannelIOError(errors.OpReceive, errors.ErrShortTransfer).WithBytes(n)
	}

	cmd := Command(binary.NativeEndian.Uint32(buf[:]))
	if !cmd.Valid() {
		return cmd, errors.Wrapf(errors.ErrUnknownCommand, "record %d", uint32(cmd))
	}
	return cmd, nil
}

// Close releases both ends. It is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(closeFd(c.wrFd), closeFd(c.readFd))
}

// Closed reports whether Close has run.
func (c *Channel) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func closeFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return errors.NewChannelIOError(errors.OpClose, err)
	}
	return nil
}
