package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/dispatch"
	"github.com/gitter-badger/zproc/proxy"
	"github.com/gitter-badger/zproc/transport"
)

func newMapCmd() *cobra.Command {
	var (
		flags     clientFlags
		itemsFile string
		task      string
		workerBin string
		workerCap int
		failFast  bool
		jobID     string
	)

	cmd := &cobra.Command{
		Use:   "map --task <name> --items <file.json>",
		Short: "Fan a JSON array of items out to zproc-worker processes and print results in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(itemsFile)
			if err != nil {
				return fmt.Errorf("read items file: %w", err)
			}
			var decoded []any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return fmt.Errorf("parse items file: %w", err)
			}

			items := make([]codec.Value, len(decoded))
			for i, d := range decoded {
				v, err := codec.ToValue(d)
				if err != nil {
					return err
				}
				items[i] = v
			}

			addrs := transport.Addrs{ReplyAddr: flags.replyAddr, PubAddr: flags.pubAddr}
			if addrs.ReplyAddr == "" || addrs.PubAddr == "" {
				discovered, err := transport.Discover()
				if err != nil {
					return err
				}
				addrs = discovered
			}

			p, err := proxy.New(proxy.WithAddrs(addrs))
			if err != nil {
				return err
			}
			defer p.Close()

			d := &dispatch.Dispatcher{
				Store:     &proxyStore{p},
				WorkerCap: workerCap,
				FailFast:  failFast,
				Launcher: dispatch.ExecLauncher{
					Addrs: addrs,
					Store: &proxyStore{p},
					Command: func(jobID, taskID string) (string, []string) {
						return workerBin, []string{"--job", jobID, "--task", taskID, "--handler", task}
					},
				},
			}

			it, err := d.Run(cmd.Context(), jobID, items)
			if err != nil {
				return err
			}

			for {
				res, done, err := it.Next(cmd.Context())
				if err != nil {
					return err
				}
				if done {
					return nil
				}
				if res.Err != nil {
					fmt.Printf("[%d] error: %v\n", res.Index, res.Err)
					continue
				}
				out, _ := json.Marshal(res.Value.Interface())
				fmt.Printf("[%d] %s\n", res.Index, out)
			}
		},
	}

	addClientFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&itemsFile, "items", "", "path to a JSON array of items to map over")
	cmd.Flags().StringVar(&task, "task", "", "name of the zproc-worker task handler to run")
	cmd.Flags().StringVar(&workerBin, "worker-bin", "zproc-worker", "path to the zproc-worker binary")
	cmd.Flags().IntVar(&workerCap, "worker-cap", 0, "maximum concurrent worker processes (0 = default)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining items after the first failure")
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id used to namespace shared-state keys (default random)")
	cmd.MarkFlagRequired("items")
	cmd.MarkFlagRequired("task")
	return cmd
}

// proxyStore adapts *proxy.Proxy to dispatch.StateStore.
type proxyStore struct {
	p *proxy.Proxy
}

func (s *proxyStore) Get(ctx context.Context, key string) (codec.Value, bool, error) {
	return s.p.Get(ctx, key)
}

func (s *proxyStore) Set(ctx context.Context, key string, v codec.Value) (uint64, error) {
	return s.p.Set(ctx, key, v)
}
