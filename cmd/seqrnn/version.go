package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/inferloop/seqrnn/pkg/constants"
)

var (
	Version   = constants.AppVersion
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
	Platform  = runtime.GOOS + "/" + runtime.GOARCH
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s, %s %s)\n",
				constants.AppName, Version, GitCommit, BuildDate, GoVersion, Platform)
		},
	}
}
