package zerrors_test

import (
	"errors"
	"testing"

	"github.com/gitter-badger/zproc/zerrors"
)

func TestKeyMissingError_Is(t *testing.T) {
	err := &zerrors.KeyMissingError{Key: "apples"}
	if !errors.Is(err, zerrors.ErrKeyMissing) {
		t.Errorf("errors.Is(%v, ErrKeyMissing) = false, want true", err)
	}
}

func TestNotConfiguredError_Is(t *testing.T) {
	err := &zerrors.NotConfiguredError{Var: "ZPROC_REPLY_ADDR"}
	if !errors.Is(err, zerrors.ErrNotConfigured) {
		t.Errorf("errors.Is(%v, ErrNotConfigured) = false, want true", err)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &zerrors.TransportError{Op: "dial", Err: cause}

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, %v) = false, want true", err, cause)
	}
}

func TestUserError_Message(t *testing.T) {
	err := &zerrors.UserError{Kind: "panic", Message: "index out of range", Trace: "goroutine 1 [running]:"}
	if err.Error() != "user panic: index out of range" {
		t.Errorf("Error() = %q, want %q", err.Error(), "user panic: index out of range")
	}
}
