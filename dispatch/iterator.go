package dispatch

import "context"

// ResultIterator yields a job's per-item results in original order,
// even though the chunks producing them finish out of order. This is
// the ordered-lazy-gather half of the dispatcher: a caller can start
// consuming index 0 while index 1's chunk is still running, but will
// never see index 1 before index 0.
type ResultIterator struct {
	total    int
	source   <-chan itemResult
	buffered map[int]itemResult
	next     int
}

func newResultIterator(total int, source <-chan itemResult) *ResultIterator {
	return &ResultIterator{total: total, source: source, buffered: make(map[int]itemResult)}
}

// Next blocks until the next result in order is available, or returns
// done=true once every item has been delivered.
func (it *ResultIterator) Next(ctx context.Context) (Result, bool, error) {
	if it.next >= it.total {
		return Result{}, true, nil
	}

	for {
		if r, ok := it.buffered[it.next]; ok {
			delete(it.buffered, it.next)
			it.next++
			return Result{Index: r.index, Value: r.value, Err: r.err}, false, nil
		}

		select {
		case r, open := <-it.source:
			if !open {
				// Channel closed before every index arrived should not
				// happen in normal operation; treat remaining items as
				// done rather than blocking forever.
				return Result{}, true, nil
			}
			it.buffered[r.index] = r
		case <-ctx.Done():
			return Result{}, false, ctx.Err()
		}
	}
}

// Remaining reports how many results have not yet been delivered via
// Next, including ones already buffered out of order.
func (it *ResultIterator) Remaining() int {
	return it.total - it.next
}
