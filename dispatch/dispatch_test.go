package dispatch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/dispatch"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]codec.Value
}

func newMemStore() *memStore { return &memStore{data: map[string]codec.Value{}} }

func (s *memStore) Get(_ context.Context, key string) (codec.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, v codec.Value) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
	return 1, nil
}

func items(n int) []codec.Value {
	out := make([]codec.Value, n)
	for i := range out {
		out[i] = codec.MustValue(float64(i))
	}
	return out
}

func collect(t *testing.T, it *dispatch.ResultIterator) []dispatch.Result {
	t.Helper()
	var out []dispatch.Result
	for {
		r, done, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if done {
			return out
		}
		out = append(out, r)
	}
}

func TestDispatcher_ResultsInOriginalOrder(t *testing.T) {
	// Several chunks run concurrently and finish in no fixed order, so an
	// iterator that just forwarded channel order could fail this.
	launcher := dispatch.FuncLauncher(func(ctx context.Context, item codec.Value) (codec.Value, error) {
		n, _ := item.Interface().(float64)
		return codec.MustValue(n * 10), nil
	})

	d := &dispatch.Dispatcher{Launcher: launcher, WorkerCap: 4}
	it, err := d.Run(context.Background(), "job-order", items(10))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := collect(t, it)
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("results[%d].Index = %d, want %d (out of order)", i, r.Index, i)
		}
		want := float64(i * 10)
		if r.Value.Interface() != want {
			t.Errorf("results[%d].Value = %v, want %v", i, r.Value.Interface(), want)
		}
	}
}

func TestDispatcher_ExceptionAtPositionDoesNotStopOthers(t *testing.T) {
	launcher := dispatch.FuncLauncher(func(ctx context.Context, item codec.Value) (codec.Value, error) {
		n, _ := item.Interface().(float64)
		if n == 3 {
			return codec.Value{}, fmt.Errorf("boom at 3")
		}
		return codec.MustValue(n), nil
	})

	d := &dispatch.Dispatcher{Launcher: launcher, WorkerCap: 4}
	it, err := d.Run(context.Background(), "job-errs", items(6))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := collect(t, it)
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6 (collect-all-errors mode keeps going)", len(results))
	}
	if results[3].Err == nil {
		t.Error("results[3].Err = nil, want the injected error")
	}
	for i, r := range results {
		if i != 3 && r.Err != nil {
			t.Errorf("results[%d].Err = %v, want nil", i, r.Err)
		}
	}
}

func TestDispatcher_FailFastCancelsLaterItems(t *testing.T) {
	store := newMemStore()
	var mu sync.Mutex
	ran := map[int]bool{}

	launcher := dispatch.FuncLauncher(func(ctx context.Context, item codec.Value) (codec.Value, error) {
		n, _ := item.Interface().(float64)
		mu.Lock()
		ran[int(n)] = true
		mu.Unlock()
		if n == 0 {
			return codec.Value{}, fmt.Errorf("immediate failure")
		}
		return codec.MustValue(n), nil
	})

	// A single worker processing one chunk sequentially makes the
	// fail-fast check on item 1 deterministic: item 0 fails before
	// item 1 is ever launched.
	d := &dispatch.Dispatcher{Launcher: launcher, Store: store, WorkerCap: 1, FailFast: true}
	it, err := d.Run(context.Background(), "job-failfast", items(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := collect(t, it)
	if results[0].Err == nil {
		t.Fatal("results[0].Err = nil, want failure")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Err == nil {
			t.Errorf("results[%d].Err = nil, want cancellation error after fail-fast", i)
		}
	}
}

func TestDispatcher_EmptyItems(t *testing.T) {
	d := &dispatch.Dispatcher{Launcher: dispatch.FuncLauncher(func(ctx context.Context, item codec.Value) (codec.Value, error) {
		return codec.Value{}, nil
	})}
	it, err := d.Run(context.Background(), "empty", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, it)
	if len(results) != 0 {
		t.Errorf("got %d results for empty input, want 0", len(results))
	}
}

func TestDispatcher_Cancel(t *testing.T) {
	store := newMemStore()
	d := &dispatch.Dispatcher{
		Launcher: dispatch.FuncLauncher(func(ctx context.Context, item codec.Value) (codec.Value, error) {
			return item, nil
		}),
		Store: store,
	}

	if err := d.Cancel(context.Background(), "job-x"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	v, exists, _ := store.Get(context.Background(), "_dispatch:job-x:cancelled")
	if !exists || v.Interface() != true {
		t.Errorf("cancellation flag = %v/%v, want true/true", v.Interface(), exists)
	}
}
