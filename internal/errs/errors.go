// Package errs provides the unified error type used across all of radosgo.
//
// Every layer (transport backends, config loader, the rados client) wraps its
// failures into *errs.Error before returning them to callers. An Error carries
// a Kind for branching and, when the failure came from the cluster, the raw
// transport Status (a negative errno, the way librados reports it) for logging.
//
// Usage:
//
//	// In the client, translate a transport status:
//	return errs.FromStatus(-2, "stat failed", cause)
//
//	// In a caller, check the error kind:
//	if errs.IsNotFound(err) {
//	    // object, pool, snapshot or config key is absent
//	}
package errs

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindInvalidArgument          // bad arguments from the caller
	ErrKindInvalidState             // handle, context or cursor in the wrong state
	ErrKindNotFound                 // object, pool, snapshot or config key absent
	ErrKindAlreadyExists            // snapshot or pool name collision
	ErrKindPermissionDenied         // the client lacks the capability
	ErrKindConnection               // transport unreachable or protocol failure
	ErrKindIO                       // local file access failure
	ErrKindConfigParse              // malformed configuration content
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidArgument:
		return "invalid_argument"
	case ErrKindInvalidState:
		return "invalid_state"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindAlreadyExists:
		return "already_exists"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConnection:
		return "connection_error"
	case ErrKindIO:
		return "io_error"
	case ErrKindConfigParse:
		return "config_parse_error"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all radosgo packages.
type Error struct {
	Kind    ErrKind
	Message string
	Status  int   // raw transport status (negative errno), 0 when none
	Cause   error // original backend-level error, preserved for logging
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WithStatus creates an *Error that also records the transport status.
func WithStatus(kind ErrKind, msg string, status int, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Status: status, Cause: cause}
}

// FromStatus maps a negative errno returned by the cluster into an *Error.
// Unrecognised statuses are reported as connection (protocol) failures.
func FromStatus(status int, msg string, cause error) *Error {
	return WithStatus(KindForStatus(status), msg, status, cause)
}

// KindForStatus returns the kind a transport status belongs to.
func KindForStatus(status int) ErrKind {
	switch syscall.Errno(-status) {
	case syscall.ENOENT:
		return ErrKindNotFound
	case syscall.EEXIST:
		return ErrKindAlreadyExists
	case syscall.EPERM, syscall.EACCES:
		return ErrKindPermissionDenied
	case syscall.EINVAL, syscall.ERANGE, syscall.ENAMETOOLONG, syscall.EFBIG:
		return ErrKindInvalidArgument
	case syscall.EROFS:
		return ErrKindInvalidState
	default:
		return ErrKindConnection
	}
}

// --- Predicates ---

// IsInvalidArgument reports whether err was caused by bad input from the caller.
func IsInvalidArgument(err error) bool {
	return KindOf(err) == ErrKindInvalidArgument
}

// IsInvalidState reports whether err was raised because a handle, context or
// cursor was used in a state that forbids the operation.
func IsInvalidState(err error) bool {
	return KindOf(err) == ErrKindInvalidState
}

// IsNotFound reports whether err represents a missing object, pool,
// snapshot or configuration key.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsAlreadyExists reports whether err is a name collision.
func IsAlreadyExists(err error) bool {
	return KindOf(err) == ErrKindAlreadyExists
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConnection reports whether err is a transport or protocol failure.
func IsConnection(err error) bool {
	return KindOf(err) == ErrKindConnection
}

// IsIO reports whether err is a local file access failure.
func IsIO(err error) bool {
	return KindOf(err) == ErrKindIO
}

// IsConfigParse reports whether err is malformed configuration content.
func IsConfigParse(err error) bool {
	return KindOf(err) == ErrKindConfigParse
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// StatusOf returns the transport status recorded in err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
