package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tuplescript",
		Short: "Coordinate components through a shared tuple store",
		Long: `tuplescript runs coordination scripts as cooperative tasks over
one tuple store.  Scripts are tuplescript (.ts) or ECMAScript (.js).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newDumpCommand())
	cmd.AddCommand(newGraphCommand())
	cmd.AddCommand(newDocCommand())

	return cmd
}
