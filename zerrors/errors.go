// Package zerrors defines the typed error kinds shared across the state
// server, transport, proxy, and dispatcher. Each kind is a tagged variant
// (not a language type hierarchy): callers use errors.As to recover
// structured fields and errors.Is against the sentinels below for the
// no-cause cases.
package zerrors

import (
	"errors"
	"fmt"
)

// Sentinel targets for errors.Is checks against error kinds that carry
// no additional structured context beyond their message.
var (
	ErrKeyMissing    = errors.New("key missing")
	ErrNotConfigured = errors.New("no server endpoint configured")
)

// TransportError reports a failure to reach the server, a lost
// connection, or a malformed frame on the wire.
type TransportError struct {
	Op  string // the operation that failed, e.g. "dial", "send", "recv"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports a watcher or request that exceeded its deadline.
type TimeoutError struct {
	Op      string // "watch" or "request"
	Elapsed string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded deadline after %s", e.Op, e.Elapsed)
}

// NotConfiguredError reports that a proxy could not discover a server
// endpoint, neither explicitly nor via the environment.
type NotConfiguredError struct {
	Var string // the environment variable that was missing
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("not configured: %s is not set", e.Var)
}

func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// KeyMissingError is raised by strict gets/deletes against an absent key.
type KeyMissingError struct {
	Key string
}

func (e *KeyMissingError) Error() string {
	return fmt.Sprintf("key missing: %q", e.Key)
}

func (e *KeyMissingError) Is(target error) bool {
	return target == ErrKeyMissing
}

// UserError wraps a failure raised inside an ATOMIC handler or a mapped
// task. Kind lets callers distinguish a panic recovery from a returned
// error without string-matching Message. Trace is a field for an
// opaque, human readable stack trace; none of this module's producers
// fill it in, and replies from the server carry only Kind and Message.
type UserError struct {
	Kind    string // e.g. "panic", "worker_exit", or the server reply's error kind
	Message string
	Trace   string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("user %s: %s", e.Kind, e.Message)
}

// ProtocolError reports a violation of the wire protocol's invariants:
// a revision regression, a duplicate request id, or an unrecognized op.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}
