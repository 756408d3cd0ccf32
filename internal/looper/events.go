package looper

import "strings"

// Events is a bit set of descriptor conditions.
type Events uint32

const (
	// EventInput means the descriptor is readable.
	EventInput Events = 1 << iota
	// EventOutput means the descriptor is writable.
	EventOutput
	// EventError reports an error condition on the descriptor.
	EventError
	// EventHangup reports that the peer closed its end.
	EventHangup
	// EventInvalid reports that the descriptor is not open.
	EventInvalid
)

// Fatal reports whether e carries a condition after which the descriptor
// can no longer be used.
func (e Events) Fatal() bool {
	return e&(EventError|EventHangup|EventInvalid) != 0
}

// Has reports whether all bits of f are set in e.
func (e Events) Has(f Events) bool {
	return e&f == f
}

var eventNames = []struct {
	flag Events
	name string
}{
	{EventInput, "input"},
	{EventOutput, "output"},
	{EventError, "error"},
	{EventHangup, "hangup"},
	{EventInvalid, "invalid"},
}

// String renders e as "input|hangup".
func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, n := range eventNames {
		if e&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// PollResult describes why PollOnce returned.
type PollResult int

const (
	// PollTimeout means the timeout elapsed with nothing to do.
	PollTimeout PollResult = iota
	// PollWake means the loop was woken and no callback ran.
	PollWake
	// PollCallback means at least one callback or posted function ran.
	PollCallback
)

func (r PollResult) String() string {
	switch r {
	case PollTimeout:
		return "timeout"
	case PollWake:
		return "wake"
	case PollCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Callback is invoked on the loop thread when a registered descriptor is
// ready. Returning false drops the registration.
type Callback func(fd int, events Events) bool
