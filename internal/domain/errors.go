package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrNotFound        = errors.New("requested resource not found")
	ErrRoomFull        = errors.New("study room is at maximum capacity")
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransportError indicates that the realtime transport could not establish
// or maintain a subscription. The caller decides whether to retry; nothing
// in this layer retries automatically.
type TransportError struct {
	Op    string // operation that failed, e.g. "subscribe"
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("transport %s failed for topic %q: %v", e.Op, e.Topic, e.Err)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError indicates that an operation exceeded its configured bound.
// It is distinct from TransportError so callers can tell a slow store apart
// from a broken subscription.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// WrapTimeout converts a context deadline failure into a TimeoutError and
// leaves every other error untouched.
func WrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}
