package wlan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNotInitialized indicates an operation attempted before BringUp
	ErrTypeNotInitialized ErrorType = iota
	// ErrTypeTransport indicates a failing chip command; it aborts the
	// remaining steps of a multi-step flow
	ErrTypeTransport
	// ErrTypeInvalidArgument indicates rejected credentials or parameters,
	// checked before any chip command is issued
	ErrTypeInvalidArgument
	// ErrTypeTimeout indicates a bounded wait exceeded its budget. The chip
	// may still complete the operation afterwards.
	ErrTypeTimeout
	// ErrTypePeerClosed indicates the socket peer closed the connection
	ErrTypePeerClosed
	// ErrTypeNotConnected indicates the link or DHCP lease is not up yet
	ErrTypeNotConnected
	// ErrTypeCanceled indicates the caller's context ended a wait
	ErrTypeCanceled
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNotInitialized:
		return "Not Initialized"
	case ErrTypeTransport:
		return "Transport Failure"
	case ErrTypeInvalidArgument:
		return "Invalid Argument"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypePeerClosed:
		return "Peer Closed"
	case ErrTypeNotConnected:
		return "Not Connected"
	case ErrTypeCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error returned by Manager and Client operations.
type Error struct {
	Type    ErrorType // Category of error
	Op      string    // Operation that failed (e.g., "connect secure")
	Step    string    // Failing chip command for ErrTypeTransport
	Message string    // Human-readable error message
	Code    int32     // Chip status code (if applicable)
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotInitializedError creates an error for an operation attempted before BringUp
func NewNotInitializedError(op string) *Error {
	return &Error{
		Type:    ErrTypeNotInitialized,
		Op:      op,
		Message: "device not initialized",
	}
}

// NewTransportError wraps the failure of chip command step
func NewTransportError(op, step string, err error) *Error {
	return &Error{
		Type:    ErrTypeTransport,
		Op:      op,
		Step:    step,
		Message: fmt.Sprintf("%s failed", step),
		Code:    transport.StatusCode(err),
		Err:     err,
	}
}

// NewInvalidArgumentError creates a local validation error
func NewInvalidArgumentError(op, message string) *Error {
	return &Error{
		Type:    ErrTypeInvalidArgument,
		Op:      op,
		Message: message,
	}
}

// NewTimeoutError creates an error for a bounded wait that ran out
func NewTimeoutError(op, waitingFor string, budget time.Duration) *Error {
	return &Error{
		Type:    ErrTypeTimeout,
		Op:      op,
		Message: fmt.Sprintf("no %s within %v", waitingFor, budget),
	}
}

// NewPeerClosedError creates an error for a socket whose peer has closed
func NewPeerClosedError(sd int32) *Error {
	return &Error{
		Type:    ErrTypePeerClosed,
		Op:      "recv",
		Message: fmt.Sprintf("socket %d closed by peer", sd),
		Code:    transport.StatusConnectionReset,
		Err:     transport.ErrConnectionReset,
	}
}

// NewNotConnectedError creates an error for an operation that needs link and DHCP
func NewNotConnectedError(op, message string) *Error {
	return &Error{
		Type:    ErrTypeNotConnected,
		Op:      op,
		Message: message,
	}
}

// NewCanceledError wraps the context error that ended a wait
func NewCanceledError(op string, err error) *Error {
	return &Error{
		Type:    ErrTypeCanceled,
		Op:      op,
		Message: "canceled",
		Err:     err,
	}
}

func errorType(err error) (ErrorType, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we.Type, true
	}
	return 0, false
}

func isType(err error, t ErrorType) bool {
	got, ok := errorType(err)
	return ok && got == t
}

// IsNotInitialized checks if an error is a not-initialized error
func IsNotInitialized(err error) bool { return isType(err, ErrTypeNotInitialized) }

// IsTransport checks if an error is a failing chip command
func IsTransport(err error) bool { return isType(err, ErrTypeTransport) }

// IsInvalidArgument checks if an error is a local validation error
func IsInvalidArgument(err error) bool { return isType(err, ErrTypeInvalidArgument) }

// IsTimeout checks if an error is a bounded-wait timeout
func IsTimeout(err error) bool { return isType(err, ErrTypeTimeout) }

// IsPeerClosed checks if an error reports a socket closed by its peer
func IsPeerClosed(err error) bool { return isType(err, ErrTypePeerClosed) }

// IsNotConnected checks if an error reports a missing link or DHCP lease
func IsNotConnected(err error) bool { return isType(err, ErrTypeNotConnected) }

// IsCanceled checks if a wait was ended by its context
func IsCanceled(err error) bool {
	return isType(err, ErrTypeCanceled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Retryable reports whether repeating the operation may succeed.
func Retryable(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	return t == ErrTypeTimeout || t == ErrTypeTransport || t == ErrTypeNotConnected
}

// Hint returns a troubleshooting hint for err, or "" if there is none.
func Hint(err error) string {
	t, ok := errorType(err)
	if !ok {
		return ""
	}
	switch t {
	case ErrTypeNotInitialized:
		return "Run 'slctl up' (or BringUp) before issuing radio commands."
	case ErrTypeTransport:
		return "The chip rejected a command. Check the bridge connection and try 'slctl up --reboot'."
	case ErrTypeInvalidArgument:
		return "SSID and key are limited to 32 bytes; security must be open, wep, wpa or wpa2."
	case ErrTypeTimeout:
		return "The access point did not answer in time. Move closer or raise timeouts.connect in the config file."
	case ErrTypePeerClosed:
		return "The remote end closed the connection."
	case ErrTypeNotConnected:
		return "Wait for the link and DHCP lease ('slctl status') before using the network."
	default:
		return ""
	}
}
