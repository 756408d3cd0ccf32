package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// ResourceAcquisitionError Tests
// -----------------------------------------------------------------------------

func TestNewResourceAcquisitionError(t *testing.T) {
	cause := errors.New("pipe: too many open files")
	err := NewResourceAcquisitionError(StageChannel, cause)

	if err.Stage != StageChannel {
		t.Errorf("Stage = %q, want %q", err.Stage, StageChannel)
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestResourceAcquisitionError_Error(t *testing.T) {
	err := NewResourceAcquisitionError(StageRegistration, ErrLoopClosed).WithBridgeID("b-1")
	got := err.Error()
	want := "acquisition error [bridge=b-1, stage=registration]: failed to acquire registration: event loop is closed"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestResourceAcquisitionError_IsStage(t *testing.T) {
	err := fmt.Errorf("create: %w", NewResourceAcquisitionError(StageLoop, ErrNoLoop))

	if !errors.Is(err, &ResourceAcquisitionError{}) {
		t.Error("expected match against any-stage target")
	}
	if !errors.Is(err, &ResourceAcquisitionError{Stage: StageLoop}) {
		t.Error("expected match against same-stage target")
	}
	if errors.Is(err, &ResourceAcquisitionError{Stage: StageChannel}) {
		t.Error("unexpected match against different-stage target")
	}
	if !errors.Is(err, ErrNoLoop) {
		t.Error("expected cause to be reachable")
	}

	var acq *ResourceAcquisitionError
	if !As(err, &acq) || acq.Stage != StageLoop {
		t.Errorf("As() did not recover the stage-%s error", StageLoop)
	}
}

// -----------------------------------------------------------------------------
// ChannelIOError Tests
// -----------------------------------------------------------------------------

func TestChannelIOError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ChannelIOError
		want string
	}{
		{
			name: "send short write",
			err:  NewChannelIOError(OpSend, ErrShortTransfer).WithBytes(2),
			want: "channel error [op=send, bytes=2]: send failed: partial command transfer",
		},
		{
			name: "receive closed with bridge",
			err:  NewChannelIOError(OpReceive, ErrChannelClosed).WithBridgeID("abc"),
			want: "channel error [bridge=abc, op=receive]: receive failed: command channel is closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChannelIOError_Is(t *testing.T) {
	err := NewChannelIOError(OpSend, ErrChannelClosed)

	if !errors.Is(err, ErrChannelClosed) {
		t.Error("expected cause match")
	}
	if !errors.Is(err, &ChannelIOError{Op: OpSend}) {
		t.Error("expected op match")
	}
	if errors.Is(err, &ChannelIOError{Op: OpReceive}) {
		t.Error("unexpected op match")
	}
}

func TestLoopFdError(t *testing.T) {
	err := NewLoopFdError(7, "error|hangup")
	if !strings.Contains(err.Error(), "fd=7") || !strings.Contains(err.Error(), "events=error|hangup") {
		t.Errorf("Error() = %q, missing context", err.Error())
	}
	if !errors.Is(err, &LoopFdError{}) {
		t.Error("expected type match")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"fd error", NewLoopFdError(3, "invalid"), true},
		{"receive failure", NewChannelIOError(OpReceive, errors.New("EIO")), true},
		{"receive partial", NewChannelIOError(OpReceive, ErrShortTransfer), false},
		{"receive empty", NewChannelIOError(OpReceive, ErrWouldBlock), false},
		{"send failure", NewChannelIOError(OpSend, errors.New("EPIPE")), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminal(tt.err); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(NewResourceAcquisitionError(StageLoop, nil)) {
		t.Error("acquisition errors should be user facing")
	}
	if IsUserFacing(NewChannelIOError(OpSend, nil)) {
		t.Error("channel errors should not be user facing")
	}
	if !IsUserFacing(Wrap(ErrAppNotFound, "lookup")) {
		t.Error("ErrAppNotFound should be user facing")
	}
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v", got)
	}
	if got := GetSeverity(errors.New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v", got)
	}
	err := NewChannelIOError(OpSend, ErrWouldBlock)
	if got := GetSeverity(Wrap(err, "notify")); got != SeverityWarning {
		t.Errorf("GetSeverity(wrapped) = %v", got)
	}
}

func TestChannelIOError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       *ChannelIOError
		severity  Severity
		retryable bool
	}{
		{"send on full pipe", NewChannelIOError(OpSend, ErrWouldBlock), SeverityWarning, true},
		{"empty read", NewChannelIOError(OpReceive, ErrWouldBlock), SeverityWarning, false},
		{"short read", NewChannelIOError(OpReceive, ErrShortTransfer), SeverityWarning, false},
		{"closed", NewChannelIOError(OpSend, ErrChannelClosed), SeverityInfo, false},
		{"bad descriptor", NewChannelIOError(OpSend, errors.New("bad file descriptor")), SeverityError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.severity {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.severity)
			}
			if got := IsRetryable(Wrap(tt.err, "context")); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	err := Wrapf(ErrUnknownCommand, "record %d", 3)
	if err.Error() != "record 3: unknown command" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrUnknownCommand) {
		t.Error("Wrapf should preserve the chain")
	}
}
