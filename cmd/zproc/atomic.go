package main

import (
	"github.com/spf13/cobra"

	"github.com/gitter-badger/zproc/codec"
)

func newAtomicCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "atomic <handler> [json-args]",
		Short: "Invoke a server-registered ATOMIC handler by name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			argsValue := codec.Null
			if len(args) == 2 {
				v, err := parseValue(args[1])
				if err != nil {
					return err
				}
				argsValue = v
			}

			p, err := flags.connect()
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.Atomic(cmd.Context(), args[0], argsValue)
			if err != nil {
				return err
			}
			printValue(result)
			return nil
		},
	}
	addClientFlags(cmd.Flags(), &flags)
	return cmd
}
