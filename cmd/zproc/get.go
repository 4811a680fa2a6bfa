package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the current value of a key as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.connect()
			if err != nil {
				return err
			}
			defer p.Close()

			v, exists, err := p.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("key %q does not exist", args[0])
			}
			printValue(v)
			return nil
		},
	}
	addClientFlags(cmd.Flags(), &flags)
	return cmd
}
