// Package dispatch implements ZProc's work dispatcher: splitting a
// slice of items into contiguous chunks across a worker pool, running
// each item through a Launcher, and gathering results back in their
// original order regardless of which chunk finishes first. Ordering
// and cancellation both route through shared state rather than
// through direct process control, since a Launcher's workers may be
// separate OS processes the dispatcher has no other channel to.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/observability"
)

// DefaultWorkerCap bounds how many workers Run will ever start
// regardless of NumCPU, keeping a large item count from spawning an
// unreasonable number of concurrent worker processes on a small host.
const DefaultWorkerCap = 32

// StateStore is the subset of proxy.Proxy the dispatcher needs to
// publish a cancellation flag that out-of-process workers can observe.
// Defined as an interface here (rather than importing package proxy
// directly) so tests can substitute an in-memory fake.
type StateStore interface {
	Get(ctx context.Context, key string) (codec.Value, bool, error)
	Set(ctx context.Context, key string, value codec.Value) (uint64, error)
}

// Dispatcher runs a job's items through Launcher across an
// auto-sized worker pool.
type Dispatcher struct {
	Launcher  Launcher
	Store     StateStore
	WorkerCap int  // 0 means DefaultWorkerCap
	FailFast  bool // stop launching new items once one fails

	Observer observability.Observer
}

// itemResult carries one item's outcome tagged with its original
// position so the iterator can restore order.
type itemResult struct {
	index int
	value codec.Value
	err   error
}

// Result is one item's outcome as delivered by ResultIterator.Next.
type Result struct {
	Index int
	Value codec.Value
	Err   error
}

func cancelKey(jobID string) string { return "_dispatch:" + jobID + ":cancelled" }

// Run launches jobID across items and returns an iterator that yields
// their results in original order. The job id, if empty, is generated;
// callers that want to Cancel a job from another goroutine must supply
// their own so they can name it.
func (d *Dispatcher) Run(ctx context.Context, jobID string, items []codec.Value) (*ResultIterator, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if len(items) == 0 {
		return newResultIterator(0, nil), nil
	}

	cap := d.WorkerCap
	if cap <= 0 {
		cap = DefaultWorkerCap
	}
	workers := runtime.NumCPU() * 2
	if workers > cap {
		workers = cap
	}
	if workers > len(items) {
		workers = len(items)
	}

	obs := d.Observer
	if obs == nil {
		obs = observability.NoOpObserver{}
	}

	results := make(chan itemResult, len(items))
	pieces := chunks(len(items), workers)

	obs.OnEvent(ctx, observability.Event{
		Type:   "dispatch.job.start",
		Level:  observability.LevelInfo,
		Source: "dispatch.Dispatcher.Run",
		Data:   map[string]any{"job_id": jobID, "items": len(items), "workers": len(pieces)},
	})

	var wg sync.WaitGroup
	for _, chunk := range pieces {
		wg.Add(1)
		go func(chunk Chunk) {
			defer wg.Done()
			d.runChunk(ctx, jobID, items, chunk, results)
		}(chunk)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	return newResultIterator(len(items), results), nil
}

func (d *Dispatcher) runChunk(ctx context.Context, jobID string, items []codec.Value, chunk Chunk, results chan<- itemResult) {
	for i := chunk.Start; i < chunk.End; i++ {
		if d.isCancelled(ctx, jobID) {
			results <- itemResult{index: i, err: fmt.Errorf("dispatch: job %s cancelled", jobID)}
			continue
		}

		taskID := fmt.Sprintf("%s-%d", jobID, i)
		value, err := d.Launcher.Launch(ctx, jobID, taskID, items[i])
		results <- itemResult{index: i, value: value, err: err}

		if err != nil && d.FailFast {
			d.Cancel(ctx, jobID)
		}
	}
}

func (d *Dispatcher) isCancelled(ctx context.Context, jobID string) bool {
	if d.Store == nil {
		return false
	}
	v, exists, err := d.Store.Get(ctx, cancelKey(jobID))
	if err != nil || !exists {
		return false
	}
	flagged, _ := v.Interface().(bool)
	return flagged
}

// Cancel flags jobID as cancelled in shared state. Workers already
// running an item finish it; workers checking between items stop
// before starting their next one. Cancel is a no-op without a Store,
// since there is nowhere durable to record the flag for out-of-process
// workers to see.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) error {
	if d.Store == nil {
		return nil
	}
	_, err := d.Store.Set(ctx, cancelKey(jobID), codec.MustValue(true))
	return err
}
