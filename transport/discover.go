// Package transport carries codec frames over Unix domain sockets: a
// ReplyServer/ReplyClient pair for unary request/reply, and a
// PubServer/Subscriber pair for the change-event fan-out. Addresses are
// Unix socket paths rather than TCP host:port pairs, matching spec.md's
// single-host scope.
package transport

import (
	"os"

	"github.com/gitter-badger/zproc/zerrors"
)

// Env vars a zproc worker process inherits from whatever launched the
// state server, the local-host equivalent of the original's implicit
// "connect to localhost" default.
const (
	EnvReplyAddr = "ZPROC_REPLY_ADDR"
	EnvPubAddr   = "ZPROC_PUB_ADDR"
)

// Addrs is the pair of socket paths a client needs to reach a server:
// one for unary requests, one for the change-event subscription.
type Addrs struct {
	ReplyAddr string
	PubAddr   string
}

// Discover reads Addrs from the environment. It returns a
// *zerrors.NotConfiguredError naming the first missing variable if
// either is unset, so a worker spawned without ZPROC_REPLY_ADDR/
// ZPROC_PUB_ADDR fails fast with a clear reason instead of hanging on
// a dial to an empty path.
func Discover() (Addrs, error) {
	reply := os.Getenv(EnvReplyAddr)
	if reply == "" {
		return Addrs{}, &zerrors.NotConfiguredError{Var: EnvReplyAddr}
	}
	pub := os.Getenv(EnvPubAddr)
	if pub == "" {
		return Addrs{}, &zerrors.NotConfiguredError{Var: EnvPubAddr}
	}
	return Addrs{ReplyAddr: reply, PubAddr: pub}, nil
}

// Env returns the environment assignments a child process needs to
// reach the server described by a. Used by the dispatcher to pass
// discovery down to spawned worker processes.
func (a Addrs) Env() []string {
	return []string{
		EnvReplyAddr + "=" + a.ReplyAddr,
		EnvPubAddr + "=" + a.PubAddr,
	}
}
