// Package errors provides centralized error definitions and error handling utilities
// for loopbridge. It defines sentinel errors, typed domain errors with context
// fields, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent the failure classes of the bridge:
//   - ResourceAcquisitionError: a construction step (loop handle, channel,
//     registration, application creator) failed; fatal to construction
//   - ChannelIOError: a send or receive on the command channel failed
//   - LoopFdError: the event loop reported error/hangup/invalid on a descriptor
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewResourceAcquisitionError(errors.StageChannel, cause)
//	err := errors.NewChannelIOError(errors.OpSend, errors.ErrShortTransfer).WithBridgeID(id)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrChannelClosed) { ... }
//
//	var acq *errors.ResourceAcquisitionError
//	if errors.As(err, &acq) && acq.Stage == errors.StageRegistration { ... }
//
// # Error Classification
//
// Severity picks the log level a failure is reported at. IsRetryable is true
// only for a send that found the pipe full, which may succeed once the loop
// thread reads. IsUserFacing marks errors whose message is meant for the
// person running the CLI. Every other failure is terminal for the bridge or
// degrades to an orderly shutdown.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Loop-related sentinel errors
var (
	// ErrNoLoop indicates that the calling thread has no prepared event loop.
	ErrNoLoop = New("no event loop for the calling thread")
	// ErrNotOwnerThread indicates a loop-thread-only operation was called elsewhere.
	ErrNotOwnerThread = New("not called on the loop-owning thread")
	// ErrLoopClosed indicates the loop's last reference was released.
	ErrLoopClosed = New("event loop is closed")
	// ErrInvalidFd indicates a negative or otherwise unusable descriptor.
	ErrInvalidFd = New("invalid file descriptor")
)

// Channel-related sentinel errors
var (
	// ErrChannelClosed indicates a transfer on a channel whose handles were released.
	ErrChannelClosed = New("command channel is closed")
	// ErrShortTransfer indicates a transfer moved fewer bytes than one record.
	ErrShortTransfer = New("partial command transfer")
	// ErrWouldBlock indicates the pipe had no room (send) or no record (receive).
	ErrWouldBlock = New("command channel would block")
	// ErrUnknownCommand indicates a record carrying an opcode outside the protocol.
	ErrUnknownCommand = New("unknown command")
)

// Bridge-related sentinel errors
var (
	// ErrAppNotFound indicates no application creator is registered for an identifier.
	ErrAppNotFound = New("application not registered")
	// ErrAppInitFailed indicates the application's OnInitialize hook reported failure.
	ErrAppInitFailed = New("application initialization failed")
	// ErrBridgeDestroyed indicates an operation on a bridge that was already deleted.
	ErrBridgeDestroyed = New("bridge destroyed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BridgeError is the base interface for all loopbridge errors.
type BridgeError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
	bridgeID   string
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	if e.bridgeID != "" {
		parts = append([]string{fmt.Sprintf("bridge=%s", e.bridgeID)}, parts...)
	}
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// Stage identifies a step of the bridge construction chain.
type Stage string

// Construction stages, in acquisition order.
const (
	StageLoop         Stage = "loop"
	StageChannel      Stage = "channel"
	StageRegistration Stage = "registration"
	StageAppCreator   Stage = "app_creator"
)

// ResourceAcquisitionError represents a failed construction step. No partial
// bridge is ever returned alongside it.
//
// Example:
//
//	err := errors.NewResourceAcquisitionError(errors.StageRegistration, cause)
//	fmt.Println(err) // "acquisition error [stage=registration]: failed to acquire registration: ..."
type ResourceAcquisitionError struct {
	baseError
	Stage Stage
}

// NewResourceAcquisitionError creates a new ResourceAcquisitionError.
func NewResourceAcquisitionError(stage Stage, cause error) *ResourceAcquisitionError {
	return &ResourceAcquisitionError{
		baseError: baseError{
			message:    fmt.Sprintf("failed to acquire %s", stage),
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Stage: stage,
	}
}

// WithBridgeID adds a bridge ID to the error context.
func (e *ResourceAcquisitionError) WithBridgeID(id string) *ResourceAcquisitionError {
	e.bridgeID = id
	return e
}

// Error returns the formatted error message.
func (e *ResourceAcquisitionError) Error() string {
	return e.format("acquisition error", []string{fmt.Sprintf("stage=%s", e.Stage)})
}

// Is checks if this error matches the target.
func (e *ResourceAcquisitionError) Is(target error) bool {
	if t, ok := target.(*ResourceAcquisitionError); ok {
		return t.Stage == "" || t.Stage == e.Stage
	}
	return e.baseError.Is(target)
}

// Op names a channel operation.
type Op string

// Channel operations.
const (
	OpOpen    Op = "open"
	OpSend    Op = "send"
	OpReceive Op = "receive"
	OpClose   Op = "close"
)

// ChannelIOError represents a failed transfer on the command channel.
//
// Example:
//
//	err := errors.NewChannelIOError(errors.OpSend, errors.ErrShortTransfer).WithBytes(2)
type ChannelIOError struct {
	baseError
	Op    Op
	Bytes int
}

// NewChannelIOError creates a new ChannelIOError.
// Severity and retryability follow from the cause: a full or empty pipe and
// a partial record are warnings, a closed channel is expected during
// teardown, anything else is an error.
func NewChannelIOError(op Op, cause error) *ChannelIOError {
	severity := SeverityError
	switch {
	case errors.Is(cause, ErrChannelClosed):
		severity = SeverityInfo
	case errors.Is(cause, ErrWouldBlock), errors.Is(cause, ErrShortTransfer):
		severity = SeverityWarning
	}
	return &ChannelIOError{
		baseError: baseError{
			message:    fmt.Sprintf("%s failed", op),
			cause:      cause,
			severity:   severity,
			retryable:  op == OpSend && errors.Is(cause, ErrWouldBlock),
			userFacing: false,
		},
		Op:    op,
		Bytes: -1,
	}
}

// WithBytes records how many bytes the failed transfer moved.
func (e *ChannelIOError) WithBytes(n int) *ChannelIOError {
	e.Bytes = n
	return e
}

// WithBridgeID adds a bridge ID to the error context.
func (e *ChannelIOError) WithBridgeID(id string) *ChannelIOError {
	e.bridgeID = id
	return e
}

// Error returns the formatted error message.
func (e *ChannelIOError) Error() string {
	parts := []string{fmt.Sprintf("op=%s", e.Op)}
	if e.Bytes >= 0 {
		parts = append(parts, fmt.Sprintf("bytes=%d", e.Bytes))
	}
	return e.format("channel error", parts)
}

// Is checks if this error matches the target.
func (e *ChannelIOError) Is(target error) bool {
	if t, ok := target.(*ChannelIOError); ok {
		return t.Op == "" || t.Op == e.Op
	}
	return e.baseError.Is(target)
}

// LoopFdError represents an error, hangup or invalid condition the event loop
// observed on a registered descriptor.
type LoopFdError struct {
	baseError
	Fd     int
	Events string
}

// NewLoopFdError creates a new LoopFdError. events is the human readable
// event set (for example "error|hangup").
func NewLoopFdError(fd int, events string) *LoopFdError {
	return &LoopFdError{
		baseError: baseError{
			message:    "descriptor unusable",
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		Fd:     fd,
		Events: events,
	}
}

// WithBridgeID adds a bridge ID to the error context.
func (e *LoopFdError) WithBridgeID(id string) *LoopFdError {
	e.bridgeID = id
	return e
}

// Error returns the formatted error message.
func (e *LoopFdError) Error() string {
	return e.format("loop fd error", []string{
		fmt.Sprintf("fd=%d", e.Fd),
		fmt.Sprintf("events=%s", e.Events),
	})
}

// Is checks if this error matches the target.
func (e *LoopFdError) Is(target error) bool {
	if _, ok := target.(*LoopFdError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.IsUserFacing()
	}
	return Is(err, ErrAppNotFound) || Is(err, ErrAppInitFailed)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BridgeError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.Severity()
	}
	return SeverityError
}

// IsTerminal reports whether err should drive a bridge into shutdown rather
// than being logged and ignored: descriptor conditions and receive failures
// other than a partial or missing record.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var fdErr *LoopFdError
	if As(err, &fdErr) {
		return true
	}
	var ioErr *ChannelIOError
	if As(err, &ioErr) {
		return ioErr.Op == OpReceive && !Is(err, ErrShortTransfer) && !Is(err, ErrWouldBlock)
	}
	return false
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
