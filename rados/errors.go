package rados

import (
	"errors"

	"github.com/koustreak/radosgo/internal/errs"
	"github.com/koustreak/radosgo/internal/transport"
)

// Error is the error type returned by every operation in this package.
// Kind says what went wrong; Status carries the raw cluster status
// (a negative errno) when the failure came from the transport.
type Error = errs.Error

// ErrKind categorises an Error.
type ErrKind = errs.ErrKind

const (
	ErrKindUnknown          = errs.ErrKindUnknown
	ErrKindInvalidArgument  = errs.ErrKindInvalidArgument
	ErrKindInvalidState     = errs.ErrKindInvalidState
	ErrKindNotFound         = errs.ErrKindNotFound
	ErrKindAlreadyExists    = errs.ErrKindAlreadyExists
	ErrKindPermissionDenied = errs.ErrKindPermissionDenied
	ErrKindConnection       = errs.ErrKindConnection
	ErrKindIO               = errs.ErrKindIO
	ErrKindConfigParse      = errs.ErrKindConfigParse
)

// IsInvalidArgument reports whether err was caused by bad caller input.
func IsInvalidArgument(err error) bool { return errs.IsInvalidArgument(err) }

// IsInvalidState reports whether err was raised because a Conn, IOContext or
// ListCtx was used in a state that forbids the operation.
func IsInvalidState(err error) bool { return errs.IsInvalidState(err) }

// IsNotFound reports whether an object, pool, snapshot or option is absent.
func IsNotFound(err error) bool { return errs.IsNotFound(err) }

// IsAlreadyExists reports whether err is a name collision.
func IsAlreadyExists(err error) bool { return errs.IsAlreadyExists(err) }

// IsPermissionDenied reports whether the client lacks the capability.
func IsPermissionDenied(err error) bool { return errs.IsPermissionDenied(err) }

// IsConnection reports whether err is a transport or protocol failure.
func IsConnection(err error) bool { return errs.IsConnection(err) }

// IsIO reports whether err is a local file access failure.
func IsIO(err error) bool { return errs.IsIO(err) }

// IsConfigParse reports whether a configuration file was malformed.
func IsConfigParse(err error) bool { return errs.IsConfigParse(err) }

// StatusOf returns the raw cluster status recorded in err, or 0.
func StatusOf(err error) int { return errs.StatusOf(err) }

// mapError translates a transport error into a *errs.Error.
// Errors that are already *errs.Error pass through unchanged.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	return errs.FromStatus(transport.StatusOf(err), msg, err)
}

func errInvalidState(msg string) error {
	return errs.New(errs.ErrKindInvalidState, msg)
}

func errInvalidArgument(msg string) error {
	return errs.New(errs.ErrKindInvalidArgument, msg)
}
