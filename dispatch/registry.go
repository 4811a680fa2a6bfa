package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gitter-badger/zproc/codec"
)

// TaskFunc is a named unit of work a zproc-worker process can be told
// to run by name. It is the client-process counterpart to
// server.AtomicFunc: the dispatcher never ships code to the worker, it
// ships a handler name the worker's own binary already has linked in.
type TaskFunc func(item codec.Value) (codec.Value, error)

// Registry is a concurrency-safe name-to-TaskFunc table. A worker
// binary registers its task functions in an init(), the same
// register-by-name-in-init pattern tools/registry.go uses for
// framework-wide handler registration.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]TaskFunc)}
}

// DefaultRegistry is the process-wide registry cmd/zproc-worker reads
// from. Handler packages linked into a worker binary register into it
// from their own init() functions.
var DefaultRegistry = NewRegistry()

// Register adds fn under name, or panics if name is already taken —
// a duplicate registration is a build-time mistake, not a runtime
// condition a worker should try to recover from.
func (r *Registry) Register(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		panic(fmt.Sprintf("dispatch: task %q already registered", name))
	}
	r.tasks[name] = fn
}

// Get returns the TaskFunc registered under name, if any.
func (r *Registry) Get(name string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	return fn, ok
}

// List returns the registered task names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
