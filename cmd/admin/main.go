package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, eris.ToString(err, false))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spawnlimiter-admin",
		Short:         "Operate a spawnlimiter server and inspect its data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("url", "http://127.0.0.1:8080", "server base url")
	root.PersistentFlags().String("data", "./data", "runtime data directory")

	root.AddCommand(
		newStateCmd(),
		newReloadCmd(),
		newCheckCmd(),
		newStatsCmd(),
		newLogsCmd(),
	)
	return root
}
