package transport

import (
	"errors"
	"fmt"
)

// Status codes reported by the chip.
const (
	// StatusConnectionReset is returned by recv when the peer reset the
	// connection.
	StatusConnectionReset int32 = -57
	StatusFailure         int32 = -1
)

var (
	// ErrConnectionReset is returned by Recv for StatusConnectionReset.
	ErrConnectionReset = errors.New("connection reset by peer")

	// ErrClosed is returned by calls on a transport that has been closed.
	ErrClosed = errors.New("transport closed")
)

// CallError is a failing status returned by a chip command.
type CallError struct {
	Op   string
	Code int32
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: chip status %d", e.Op, e.Code)
}

// Is matches ErrConnectionReset for the reset status code.
func (e *CallError) Is(target error) bool {
	return target == ErrConnectionReset && e.Code == StatusConnectionReset
}

// Fail returns a CallError with the generic failure status.
func Fail(op string) error {
	return &CallError{Op: op, Code: StatusFailure}
}

// StatusCode extracts the chip status code from err. It returns 0 for nil
// and StatusFailure for errors that did not come from the chip.
func StatusCode(err error) int32 {
	if err == nil {
		return 0
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	if errors.Is(err, ErrConnectionReset) {
		return StatusConnectionReset
	}
	return StatusFailure
}
