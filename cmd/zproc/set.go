package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSetCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Set a key to a JSON-encoded value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}

			p, err := flags.connect()
			if err != nil {
				return err
			}
			defer p.Close()

			revision, err := p.Set(cmd.Context(), args[0], value)
			if err != nil {
				return err
			}
			fmt.Println(revision)
			return nil
		},
	}
	addClientFlags(cmd.Flags(), &flags)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.connect()
			if err != nil {
				return err
			}
			defer p.Close()

			revision, err := p.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(revision)
			return nil
		},
	}
	addClientFlags(cmd.Flags(), &flags)
	return cmd
}
