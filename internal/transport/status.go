package transport

import (
	"context"
	"errors"
	"fmt"
	"syscall"
)

// Statuses returned across the transport boundary, as negative errno values.
const (
	StatusOK           = 0
	StatusAgain        = -int(syscall.EAGAIN)
	StatusPerm         = -int(syscall.EPERM)
	StatusNotFound     = -int(syscall.ENOENT)
	StatusIO           = -int(syscall.EIO)
	StatusBusy         = -int(syscall.EBUSY)
	StatusAccess       = -int(syscall.EACCES)
	StatusExists       = -int(syscall.EEXIST)
	StatusInvalid      = -int(syscall.EINVAL)
	StatusTooBig       = -int(syscall.EFBIG)
	StatusReadOnly     = -int(syscall.EROFS)
	StatusRange        = -int(syscall.ERANGE)
	StatusNameTooLong  = -int(syscall.ENAMETOOLONG)
	StatusNotConnected = -int(syscall.ENOTCONN)
	StatusShutdown     = -int(syscall.ESHUTDOWN)
	StatusTimedOut     = -int(syscall.ETIMEDOUT)
	StatusRefused      = -int(syscall.ECONNREFUSED)
)

// StatusError is the error every backend returns.
type StatusError struct {
	Op     string
	Status int
	Err    error // backend-native cause, may be nil
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, syscall.Errno(-e.Status), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, syscall.Errno(-e.Status))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Errorf builds a *StatusError for op.
func Errorf(status int, op string, cause error) error {
	return &StatusError{Op: op, Status: status, Err: cause}
}

// StatusOf extracts the status carried by err. Context cancellation and
// deadlines become StatusTimedOut; any other non-status error is StatusIO.
func StatusOf(err error) int {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusTimedOut
	}
	return StatusIO
}

// CheckContext returns a StatusTimedOut error when ctx is done.
func CheckContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return Errorf(StatusTimedOut, op, err)
	}
	return nil
}
