// Command zproc is the ZProc state server and client CLI: `zproc serve`
// runs the server, and the remaining subcommands (get/set/delete/
// watch/atomic/map) act as a client against a running one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "zproc",
		Short: "A shared, observable key-value state server for cooperating processes",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a zproc config JSON file")

	root.AddCommand(
		newServeCmd(),
		newGetCmd(),
		newSetCmd(),
		newDeleteCmd(),
		newWatchCmd(),
		newAtomicCmd(),
		newMapCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
