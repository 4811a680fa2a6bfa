package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/proxy"
)

func newWatchCmd() *cobra.Command {
	var flags clientFlags
	var when, want string
	var onlyLive bool

	cmd := &cobra.Command{
		Use:   "watch <key>",
		Short: "Block until a key satisfies a condition, then print its value",
		Long: "The --when flag selects the condition: change (default), equal, not-equal, or available.\n" +
			"equal and not-equal require --want with a JSON literal to compare against.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.connect()
			if err != nil {
				return err
			}
			defer p.Close()

			var opts []proxy.WatchOption
			if onlyLive {
				opts = append(opts, proxy.OnlyLive())
			}

			key := args[0]
			ctx := cmd.Context()

			var (
				value  codec.Value
				exists bool
			)
			switch when {
			case "", "change":
				v, e, werr := p.GetWhenChange(ctx, key, opts...)
				value, exists, err = v, e, werr
			case "equal":
				wantVal, perr := parseValue(want)
				if perr != nil {
					return perr
				}
				v, e, werr := p.GetWhenEqual(ctx, key, wantVal, opts...)
				value, exists, err = v, e, werr
			case "not-equal":
				wantVal, perr := parseValue(want)
				if perr != nil {
					return perr
				}
				v, e, werr := p.GetWhenNotEqual(ctx, key, wantVal, opts...)
				value, exists, err = v, e, werr
			case "available":
				v, e, werr := p.GetWhenAvailable(ctx, key, opts...)
				value, exists, err = v, e, werr
			default:
				return fmt.Errorf("unknown --when %q: want change, equal, not-equal, or available", when)
			}
			if err != nil {
				return err
			}
			if !exists {
				fmt.Println("null")
				return nil
			}
			printValue(value)
			return nil
		},
	}

	addClientFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&when, "when", "change", "condition to wait for: change, equal, not-equal, available")
	cmd.Flags().StringVar(&want, "want", "", "JSON literal to compare against for equal/not-equal")
	cmd.Flags().BoolVar(&onlyLive, "only-live", false, "ignore a condition that already holds; wait for a future commit")
	return cmd
}
