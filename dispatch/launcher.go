package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/transport"
	"github.com/gitter-badger/zproc/zerrors"
)

// ItemKey and ResultKey are the shared-state keys an ExecLauncher
// writes a task's input under and reads its output back from. They
// are exported so a zproc-worker binary (which only knows its jobID
// and taskID, not this package) can compute the same keys.
func ItemKey(jobID, taskID string) string   { return "_dispatch:" + jobID + ":" + taskID + ":item" }
func ResultKey(jobID, taskID string) string { return "_dispatch:" + jobID + ":" + taskID + ":result" }

// Launcher runs one item of a job and returns its result. jobID and
// taskID identify the unit of work for logging and for the worker to
// look up its assigned item in shared state if the item itself is too
// large to pass on the command line.
type Launcher interface {
	Launch(ctx context.Context, jobID, taskID string, item codec.Value) (codec.Value, error)
}

// FuncLauncher runs work in-process via an ordinary Go function. It is
// the launcher tests use, and is also a reasonable choice for a
// dispatcher embedded in the same binary as its workers.
type FuncLauncher func(ctx context.Context, item codec.Value) (codec.Value, error)

// Launch implements Launcher.
func (f FuncLauncher) Launch(ctx context.Context, _, _ string, item codec.Value) (codec.Value, error) {
	return f(ctx, item)
}

// ExecLauncher runs each item as a separate worker process, the model
// spec.md's dispatcher targets: cooperating processes rather than
// goroutines, so a worker crash cannot take down the dispatching
// process. The item itself is written into shared state under a
// per-task key before the process starts; the worker reads it back
// through its own Proxy rather than via argv, keeping arbitrarily
// large or nested values off the command line.
type ExecLauncher struct {
	// Command builds the argv for one task; typically the zproc-worker
	// binary path followed by --job/--task/--handler flags. jobID and
	// taskID are what the spawned process uses to find its assigned
	// item (via ItemKey) and to write its result back (via ResultKey)
	// through its own Proxy.
	Command func(jobID, taskID string) (name string, args []string)
	Addrs   transport.Addrs
	Store   StateStore
}

// Launch writes item into shared state under ItemKey, starts the
// worker process, and once it exits successfully reads the result back
// from ResultKey. The item's own transport is out of band from the
// process's argv so arbitrarily large or nested values never touch
// the command line or an OS-imposed argument length limit.
func (l ExecLauncher) Launch(ctx context.Context, jobID, taskID string, item codec.Value) (codec.Value, error) {
	if l.Store == nil {
		return codec.Value{}, &zerrors.UserError{Kind: "config", Message: "ExecLauncher requires a Store to pass items to worker processes"}
	}
	if _, err := l.Store.Set(ctx, ItemKey(jobID, taskID), item); err != nil {
		return codec.Value{}, &zerrors.TransportError{Op: "write item", Err: err}
	}

	name, args := l.Command(jobID, taskID)
	cmd := exec.CommandContext(ctx, name, args...)
	// The worker still needs the rest of its normal environment (PATH,
	// HOME, etc.) on top of the two ZPROC addresses; starting from
	// os.Environ() rather than a nil cmd.Env is what "inherited" means.
	cmd.Env = append(os.Environ(), l.Addrs.Env()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return codec.Value{}, &zerrors.UserError{
			Kind:    "worker_exit",
			Message: fmt.Sprintf("task %s: %v: %s", taskID, err, stderr.String()),
		}
	}

	result, _, err := l.Store.Get(ctx, ResultKey(jobID, taskID))
	if err != nil {
		return codec.Value{}, &zerrors.TransportError{Op: "read result", Err: err}
	}
	return result, nil
}
