// Command zproc-worker is the process an ExecLauncher spawns for one
// dispatch task. It reads its assigned item from shared state, runs
// the named task handler linked into this binary via
// dispatch.DefaultRegistry, and writes the result back to shared
// state before exiting. Handler packages register themselves from an
// init() function; see dispatch.Registry.Register.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gitter-badger/zproc/dispatch"
	"github.com/gitter-badger/zproc/proxy"

	// Blank-imported so its init() populates dispatch.DefaultRegistry.
	// A deployment building its own worker binary replaces this import
	// with its own task-handler package.
	_ "github.com/gitter-badger/zproc/internal/exampletasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "zproc-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	job := flag.String("job", "", "dispatch job id")
	task := flag.String("task", "", "dispatch task id")
	handler := flag.String("handler", "", "registered task handler name")
	flag.Parse()

	if *job == "" || *task == "" || *handler == "" {
		return fmt.Errorf("usage: zproc-worker --job <id> --task <id> --handler <name>")
	}

	fn, ok := dispatch.DefaultRegistry.Get(*handler)
	if !ok {
		return fmt.Errorf("no task handler registered: %q", *handler)
	}

	p, err := proxy.New()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := context.Background()
	item, exists, err := p.Get(ctx, dispatch.ItemKey(*job, *task))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no item found for task %s/%s", *job, *task)
	}

	result, err := fn(item)
	if err != nil {
		return err
	}

	if _, err := p.Set(ctx, dispatch.ResultKey(*job, *task), result); err != nil {
		return err
	}
	return nil
}
