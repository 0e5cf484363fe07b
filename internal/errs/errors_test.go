package errs

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrKind
	}{
		{name: "enoent", status: -int(syscall.ENOENT), want: ErrKindNotFound},
		{name: "eexist", status: -int(syscall.EEXIST), want: ErrKindAlreadyExists},
		{name: "eperm", status: -int(syscall.EPERM), want: ErrKindPermissionDenied},
		{name: "eacces", status: -int(syscall.EACCES), want: ErrKindPermissionDenied},
		{name: "einval", status: -int(syscall.EINVAL), want: ErrKindInvalidArgument},
		{name: "erofs", status: -int(syscall.EROFS), want: ErrKindInvalidState},
		{name: "enotconn", status: -int(syscall.ENOTCONN), want: ErrKindConnection},
		{name: "eio", status: -int(syscall.EIO), want: ErrKindConnection},
		{name: "unmapped", status: -9999, want: ErrKindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestFromStatus_CarriesStatus(t *testing.T) {
	cause := errors.New("boom")
	err := FromStatus(-int(syscall.ENOENT), "stat failed", cause)

	assert.True(t, IsNotFound(err))
	assert.Equal(t, -int(syscall.ENOENT), StatusOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "status -2")
	assert.Contains(t, err.Error(), "[not_found]")
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	base := New(ErrKindInvalidState, "io context closed")
	wrapped := fmt.Errorf("write failed: %w", base)

	assert.True(t, IsInvalidState(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, 0, StatusOf(wrapped))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
}

func TestErrKind_String(t *testing.T) {
	assert.Equal(t, "config_parse_error", ErrKindConfigParse.String())
	assert.Equal(t, "io_error", ErrKindIO.String())
	assert.Equal(t, "unknown", ErrKind(42).String())
}
