package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no config or logging setup needed
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tapkeeper %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit:     %s\n", Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "built:      %s\n", BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
